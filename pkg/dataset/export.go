package dataset

import (
	"context"
	"fmt"
	"os"
)

// ExportXLSX copies every topic of src into a fresh workbook at path,
// replacing any existing file.
func ExportXLSX(ctx context.Context, src Dataset, path string) (int, error) {
	topics, err := src.Topics(ctx)
	if err != nil {
		return 0, err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("removing old export: %w", err)
	}

	dst, err := OpenXLSX(path)
	if err != nil {
		return 0, err
	}

	written := 0
	for i := range topics {
		if err := ctx.Err(); err != nil {
			dst.Close()
			return written, err
		}
		ok, err := dst.Append(ctx, &topics[i])
		if err != nil {
			dst.Close()
			return written, err
		}
		if ok {
			written++
		}
	}

	if err := dst.Close(); err != nil {
		return written, err
	}
	return written, nil
}
