// Package etag computes version stamps for backends that do not supply
// container etags of their own.
package etag

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Ning0612/Syncenum/internal/domain"
)

// DefaultBufferSize is the read buffer used by FromReader
const DefaultBufferSize = 32 * 1024

// ForFile derives an etag from size and modification time
func ForFile(size int64, modTime time.Time) string {
	d := xxhash.New()
	d.WriteString(strconv.FormatInt(size, 10))
	d.WriteString(":")
	d.WriteString(strconv.FormatInt(modTime.UnixNano(), 10))
	return format(d.Sum64())
}

// ForChildren derives a container etag from its immediate children.
// The input order does not matter.
func ForChildren(children []domain.Entry) string {
	keys := make([]string, 0, len(children))
	for _, c := range children {
		kind := "f"
		if c.IsDir {
			kind = "d"
		}
		keys = append(keys, kind+"|"+c.Name+"|"+c.ETag)
	}
	sort.Strings(keys)

	d := xxhash.New()
	for _, k := range keys {
		d.WriteString(k)
		d.WriteString("\n")
	}
	return format(d.Sum64())
}

// ForID derives a stable identifier from a backend key
func ForID(key string) string {
	return format(xxhash.Sum64String(key))
}

// FromReader hashes streamed content, checking ctx between chunks
func FromReader(ctx context.Context, r io.Reader) (string, error) {
	d := xxhash.New()
	buf := make([]byte, DefaultBufferSize)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			d.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read error: %w", err)
		}
	}
	return format(d.Sum64()), nil
}

func format(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}
