package transfer

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/simpleremote/simpleremote/pkg/errors"
	"github.com/simpleremote/simpleremote/pkg/logger"
)

const (
	// residualDrainTimeout bounds the read for trailing archive padding
	// the peer may still be flushing after end-of-archive.
	residualDrainTimeout = 2 * time.Second
)

// entry is one filesystem object selected for archiving
type entry struct {
	abs  string
	rel  string // archive name, '/'-separated, trailing '/' on directories
	dir  bool
	size int64
}

// resolve expands the requested path into archive entries.
//
// A final component containing '*' or '?' is expanded as a glob rooted at
// the parent directory: matching files are included directly, matching
// directories recursively. A directory path includes all descendants
// relative to the directory itself. Anything else is a single file
// relative to its parent.
func resolve(path string) ([]entry, error) {
	if strings.ContainsAny(filepath.Base(path), "*?") {
		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, fmt.Errorf("%w: bad pattern %q: %v", errors.ErrTransferProtocol, path, err)
		}
		root := filepath.Dir(path)
		var entries []entry
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", errors.ErrPermissionDenied, err)
			}
			if info.IsDir() {
				sub, err := collectTree(match, root, true)
				if err != nil {
					return nil, err
				}
				entries = append(entries, sub...)
			} else {
				entries = append(entries, fileEntry(match, root, info))
			}
		}
		return entries, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrPermissionDenied, err)
	}
	if info.IsDir() {
		return collectTree(path, path, false)
	}
	return []entry{fileEntry(path, filepath.Dir(path), info)}, nil
}

// collectTree walks dir and returns its contents relative to root.
// includeSelf adds an entry for dir itself (glob-matched directories).
func collectTree(dir, root string, includeSelf bool) ([]entry, error) {
	var entries []entry
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir && !includeSelf {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			rel, err := relName(p, root)
			if err != nil {
				return err
			}
			entries = append(entries, entry{abs: p, rel: rel + "/", dir: true})
			return nil
		}
		entries = append(entries, fileEntry(p, root, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrPermissionDenied, err)
	}
	return entries, nil
}

func fileEntry(abs, root string, info fs.FileInfo) entry {
	rel, _ := relName(abs, root)
	return entry{abs: abs, rel: rel, size: info.Size()}
}

func relName(abs, root string) (string, error) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// ProbeSize pre-computes the uncompressed byte total for a path or glob
// using the same resolution rules as a download, so an RPC reply can
// carry the total before the transfer starts.
func ProbeSize(path string) (int64, error) {
	entries, err := resolve(path)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.size
	}
	return total, nil
}

// WriteArchive streams a tar archive covering path to w and returns the
// sum of file content sizes written (headers excluded).
func WriteArchive(w io.Writer, path string) (int64, error) {
	entries, err := resolve(path)
	if err != nil {
		return 0, err
	}

	tw := tar.NewWriter(w)
	var total int64
	for _, e := range entries {
		if e.dir {
			hdr := &tar.Header{
				Name:     e.rel,
				Typeflag: tar.TypeDir,
				Mode:     0755,
				ModTime:  time.Now(),
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return total, errors.WrapTransferError(path, "write-header", err)
			}
			continue
		}

		if err := writeFileEntry(tw, e); err != nil {
			return total, errors.WrapTransferError(path, "write-entry", err)
		}
		total += e.size
	}

	if err := tw.Close(); err != nil {
		return total, errors.WrapTransferError(path, "close-archive", err)
	}
	return total, nil
}

func writeFileEntry(tw *tar.Writer, e entry) error {
	f, err := os.Open(e.abs)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr := &tar.Header{
		Name:     e.rel,
		Typeflag: tar.TypeReg,
		Mode:     int64(info.Mode().Perm()),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := io.Copy(tw, f); err != nil {
		return err
	}
	return nil
}

// ExtractArchive reads a tar stream from r and extracts it under dest.
// With overwrite false, a name collision with an existing file fails the
// whole operation. Returns the sum of decoded file content sizes;
// directory entries count zero.
func ExtractArchive(r io.Reader, dest string, overwrite bool) (int64, error) {
	tr := tar.NewReader(r)
	var total int64

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("%w: %v", errors.ErrTransferProtocol, err)
		}

		target, err := secureJoin(dest, hdr.Name)
		if err != nil {
			return total, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return total, errors.WrapTransferError(dest, "mkdir", err)
			}

		case tar.TypeReg:
			n, err := extractFile(tr, target, overwrite)
			total += n
			if err != nil {
				return total, err
			}

		case tar.TypeSymlink:
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return total, errors.WrapTransferError(dest, "symlink", err)
			}

		default:
			// Hard links, devices, fifos: not part of the protocol
		}
	}
}

func extractFile(r io.Reader, target string, overwrite bool) (int64, error) {
	if !overwrite {
		if _, err := os.Lstat(target); err == nil {
			return 0, fmt.Errorf("%w: destination exists: %s", errors.ErrTransferProtocol, target)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, errors.WrapTransferError(target, "mkdir", err)
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, errors.WrapTransferError(target, "create", err)
	}
	defer func() { _ = f.Close() }()

	n, err := io.Copy(f, r)
	if err != nil {
		return n, fmt.Errorf("%w: %v", errors.ErrTransferProtocol, err)
	}
	return n, nil
}

// secureJoin resolves an archive member name under dest and rejects names
// that escape it.
func secureJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	cleanDest := filepath.Clean(dest)
	if target != cleanDest && !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: entry escapes destination: %s", errors.ErrTransferProtocol, name)
	}
	return target, nil
}

// ServeUpload drives the server side of an Upload over an accepted
// connection: extract the inbound archive, drain residual padding without
// closing so the peer does not see an RST, then acknowledge with the
// ASCII byte-count trailer.
func ServeUpload(conn net.Conn, dest string, overwrite bool, log *logger.Logger) (int64, error) {
	defer func() { _ = conn.Close() }()

	session := uuid.NewString()
	if log == nil {
		log = logger.WithComponent("transfer")
	}
	log = log.WithFields("session", session, "dest", dest)
	log.Debug("upload transfer started", "peer", conn.RemoteAddr())

	total, err := ExtractArchive(conn, dest, overwrite)
	if err != nil {
		log.Error("upload extraction failed", "error", err)
		return total, err
	}

	// tar can legally emit trailing null blocks after the end-of-archive
	// marker; read them off before acknowledging.
	_ = conn.SetReadDeadline(time.Now().Add(residualDrainTimeout))
	_, _ = io.Copy(io.Discard, conn)
	_ = conn.SetReadDeadline(time.Time{})

	if _, err := fmt.Fprintf(conn, "%d\r\n", total); err != nil {
		log.Error("failed to write byte-count trailer", "error", err)
		return total, errors.WrapTransferError(dest, "trailer", err)
	}

	log.Info("upload transfer complete", "bytes", total)
	return total, nil
}

// ServeDownload drives the server side of a Download: stream the archive
// for path to the accepted connection and close.
func ServeDownload(conn net.Conn, path string, log *logger.Logger) (int64, error) {
	defer func() { _ = conn.Close() }()

	session := uuid.NewString()
	if log == nil {
		log = logger.WithComponent("transfer")
	}
	log = log.WithFields("session", session, "path", path)
	log.Debug("download transfer started", "peer", conn.RemoteAddr())

	total, err := WriteArchive(conn, path)
	if err != nil {
		log.Error("download streaming failed", "error", err)
		return total, err
	}

	log.Info("download transfer complete", "bytes", total)
	return total, nil
}
