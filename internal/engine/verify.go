package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/bamsammich/widepath/internal/event"
	"github.com/bamsammich/widepath/internal/pathname"
)

// ErrVerifyMismatch reports a copy whose content digest differs from its
// source.
var ErrVerifyMismatch = errors.New("content digest mismatch")

// verify compares BLAKE3 digests of src and dst. It is a no-op unless
// verification was requested and the backend can hash.
func (c *copier) verify(ctx context.Context, src, dst pathname.Path) error {
	if c.hasher == nil {
		return nil
	}

	var srcHash, dstHash string
	err := c.call(ctx, "hash", src, func() (err error) {
		srcHash, err = c.hasher.Hash(ctx, src, c.tx)
		return err
	})
	if err == nil {
		err = c.call(ctx, "hash", dst, func() (err error) {
			dstHash, err = c.hasher.Hash(ctx, dst, c.tx)
			return err
		})
	}
	if err == nil && srcHash != dstHash {
		err = fmt.Errorf("verify %s: %w", dst, ErrVerifyMismatch)
	}
	if err != nil {
		c.stats.AddVerifyFailed(1)
		c.log.Warn("verify failed", "src", string(src), "dst", string(dst),
			"src_hash", srcHash, "dst_hash", dstHash, "error", err)
		c.e.emit(event.Event{Type: event.VerifyFailed, Path: string(src), Target: string(dst), Error: err})
		return err
	}

	c.stats.AddVerified(1)
	return nil
}
