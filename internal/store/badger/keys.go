package badger

import "strings"

// Key namespace
// =============
//
// Prefix  Key format                                       Value
// ---------------------------------------------------------------------------
// "r:"    r:<account>\x00<fileID>                          MetadataRecord (JSON)
// "c:"    c:<account>\x00<parent>\x00<name>\x00<fileID>     fileID (bytes)
// "d:"    d:<account>\x00<path>                            DirectoryState (JSON)
//
// The child index sorts children of one parent by name, then identifier, so a
// directory window is a prefix scan with an offset. NUL never appears in
// account names, paths or identifiers.

const sep = "\x00"

const (
	prefixRecord    = "r:"
	prefixChild     = "c:"
	prefixDirectory = "d:"
)

func keyRecord(account, fileID string) []byte {
	return []byte(prefixRecord + account + sep + fileID)
}

func keyRecordPrefix(account string) []byte {
	return []byte(prefixRecord + account + sep)
}

func keyChild(account, parent, name, fileID string) []byte {
	return []byte(prefixChild + account + sep + parent + sep + name + sep + fileID)
}

func keyChildPrefix(account, parent string) []byte {
	return []byte(prefixChild + account + sep + parent + sep)
}

func keyChildAccountPrefix(account string) []byte {
	return []byte(prefixChild + account + sep)
}

func keyDirectory(account, path string) []byte {
	return []byte(prefixDirectory + account + sep + path)
}

func keyDirectoryPrefix(account string) []byte {
	return []byte(prefixDirectory + account + sep)
}

// parentFromChildKey extracts the parent path of a child index key
func parentFromChildKey(account string, key []byte) string {
	rest := strings.TrimPrefix(string(key), string(keyChildAccountPrefix(account)))
	if i := strings.Index(rest, sep); i >= 0 {
		return rest[:i]
	}
	return rest
}
