package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"shareqr/internal/model"
)

// BundleName is the sentinel recorded as the accessed file when a client
// downloads the full bundle instead of a single file.
const BundleName = "all_files.zip"

// errSkippable marks per-file failures that leave the bundle intact.
var errSkippable = errors.New("skippable entry failure")

// Resolver resolves a session file to a validated on-disk path.
type Resolver interface {
	Resolve(session *model.UploadSession, requestedName string) (string, error)
}

// Bundle streams a zip archive of every resolvable session file into sink,
// one entry at a time, so peak memory stays at one read buffer regardless of
// bundle size. Files that cannot be resolved or opened are skipped with a
// server-side log entry; a sink write failure aborts immediately with all
// file handles released. Returns the number of bytes written to sink.
func Bundle(ctx context.Context, session *model.UploadSession, resolver Resolver, sink io.Writer) (int64, error) {
	cw := &countingWriter{w: sink}
	zw := zip.NewWriter(cw)

	for _, file := range session.Files {
		if err := ctx.Err(); err != nil {
			return cw.written, err
		}

		path, err := resolver.Resolve(session, file.OriginalName)
		if err != nil {
			log.Printf("Warning: skipping bundle entry %q in upload %s: %v",
				file.OriginalName, session.SessionID, err)
			continue
		}

		if err := addEntry(zw, path, file.OriginalName); err != nil {
			if errors.Is(err, errSkippable) {
				log.Printf("Warning: skipping bundle entry %q in upload %s: %v",
					file.OriginalName, session.SessionID, err)
				continue
			}
			// Sink failure, usually a disconnected client. Abort without
			// flushing the central directory.
			return cw.written, err
		}
	}

	if err := zw.Close(); err != nil {
		return cw.written, err
	}

	return cw.written, nil
}

// addEntry copies one file into the archive. Open and stat failures are
// wrapped as skippable; copy failures are treated as sink errors.
func addEntry(zw *zip.Writer, path, entryName string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", errSkippable, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", errSkippable, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header: %w", err)
	}
	header.Name = entryName
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to write zip entry: %w", err)
	}

	return nil
}

type countingWriter struct {
	w       io.Writer
	written int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.written += int64(n)
	return n, err
}
