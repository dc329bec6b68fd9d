package adapters

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"

	"storagectl/internal/ports"
	"storagectl/internal/types"
)

const (
	snapshotArchiveExt  = ".tar.gz"
	snapshotManifestExt = ".yaml"
	latestPointerName   = "latest"
)

// SnapshotStoreFile keeps snapshots as gzip tarballs next to a YAML
// manifest each. Archive members are stored relative to Root, so a
// snapshot restores to the same absolute paths it was taken from.
type SnapshotStoreFile struct {
	Dir  string
	Root string
}

func NewSnapshotStoreFile(dir string) SnapshotStoreFile {
	return SnapshotStoreFile{Dir: dir, Root: string(os.PathSeparator)}
}

func (s SnapshotStoreFile) Archive(ctx context.Context, name string, paths []string) (string, int64, error) {
	if err := s.validate(name); err != nil {
		return "", 0, err
	}
	if len(paths) == 0 {
		return "", 0, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("no paths to archive")
	}
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return "", 0, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create snapshot directory").
			WithCause(err)
	}
	dest := filepath.Join(s.Dir, name+snapshotArchiveExt)
	tmp, err := os.CreateTemp(s.Dir, "."+name+"-*")
	if err != nil {
		return "", 0, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create archive").
			WithCause(err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	gz, err := gzip.NewWriterLevel(tmp, gzip.DefaultCompression)
	if err != nil {
		tmp.Close()
		return "", 0, err
	}
	tw := tar.NewWriter(gz)
	for _, path := range paths {
		if err := s.addTree(ctx, tw, path); err != nil {
			tw.Close()
			gz.Close()
			tmp.Close()
			return "", 0, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to archive " + path).
				WithCause(err)
		}
	}
	if err := tw.Close(); err != nil {
		gz.Close()
		tmp.Close()
		return "", 0, err
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return "", 0, err
	}
	if err := tmp.Close(); err != nil {
		return "", 0, err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return "", 0, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to store archive").
			WithCause(err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return "", 0, err
	}
	return dest, info.Size(), nil
}

func (s SnapshotStoreFile) addTree(ctx context.Context, tw *tar.Writer, root string) error {
	if _, err := os.Lstat(root); err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		name, err := s.memberName(path)
		if err != nil {
			return err
		}
		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		} else if !info.Mode().IsRegular() && !info.IsDir() {
			// sockets, fifos and devices are not restorable
			return nil
		}
		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		header.Name = name
		if info.IsDir() {
			header.Name += "/"
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tw, file)
		return err
	})
}

func (s SnapshotStoreFile) memberName(path string) (string, error) {
	rel, err := filepath.Rel(s.root(), path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%s is outside %s", path, s.root())
	}
	return filepath.ToSlash(rel), nil
}

func (s SnapshotStoreFile) WriteManifest(ctx context.Context, snapshot types.Snapshot) (types.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return types.Snapshot{}, err
	}
	if err := s.validate(snapshot.ID); err != nil {
		return types.Snapshot{}, err
	}
	path := s.manifestPath(snapshot.ID)
	if _, err := os.Stat(path); err == nil {
		return types.Snapshot{}, errbuilder.New().
			WithCode(errbuilder.CodeAlreadyExists).
			WithMsg("snapshot already exists")
	}
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return types.Snapshot{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode snapshot manifest").
			WithCause(err)
	}
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return types.Snapshot{}, err
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return types.Snapshot{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write snapshot manifest").
			WithCause(err)
	}
	snapshot.Path = path
	return snapshot, nil
}

func (s SnapshotStoreFile) List(ctx context.Context) ([]types.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.Dir) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("snapshot directory is empty")
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []types.Snapshot{}, nil
		}
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read snapshot directory").
			WithCause(err)
	}
	snapshots := []types.Snapshot{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotManifestExt) {
			continue
		}
		snapshot, err := s.readManifest(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

func (s SnapshotStoreFile) Get(ctx context.Context, id string) (types.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return types.Snapshot{}, err
	}
	if err := s.validate(id); err != nil {
		return types.Snapshot{}, err
	}
	path := s.manifestPath(id)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return types.Snapshot{}, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("snapshot not found: " + id)
		}
		return types.Snapshot{}, err
	}
	return s.readManifest(path)
}

func (s SnapshotStoreFile) readManifest(path string) (types.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Snapshot{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read snapshot manifest").
			WithCause(err)
	}
	var snapshot types.Snapshot
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return types.Snapshot{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("invalid snapshot manifest " + filepath.Base(path)).
			WithCause(err)
	}
	if snapshot.ID == "" {
		snapshot.ID = strings.TrimSuffix(filepath.Base(path), snapshotManifestExt)
	}
	snapshot.Path = path
	return snapshot, nil
}

// Delete removes the manifest and archives of a snapshot. The latest
// pointer is cleared when it names the deleted snapshot.
func (s SnapshotStoreFile) Delete(ctx context.Context, id string) error {
	snapshot, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	for _, archive := range snapshot.Archives {
		if err := os.Remove(archive); err != nil && !os.IsNotExist(err) {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to delete snapshot archive").
				WithCause(err)
		}
	}
	if err := os.Remove(snapshot.Path); err != nil && !os.IsNotExist(err) {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to delete snapshot manifest").
			WithCause(err)
	}
	if latest, err := s.LatestPointer(ctx); err == nil && latest == id {
		if err := os.Remove(filepath.Join(s.Dir, latestPointerName)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (s SnapshotStoreFile) Extract(ctx context.Context, snapshot types.Snapshot) error {
	if len(snapshot.Archives) == 0 {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("snapshot has no archives")
	}
	for _, archive := range snapshot.Archives {
		if err := s.extractArchive(ctx, archive); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to extract " + filepath.Base(archive)).
				WithCause(err)
		}
	}
	return nil
}

func (s SnapshotStoreFile) extractArchive(ctx context.Context, archive string) error {
	file, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer file.Close()
	gz, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	root := s.root()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(root, filepath.FromSlash(header.Name))
		if !withinRoot(root, target) {
			return fmt.Errorf("archive member %q escapes %s", header.Name, root)
		}
		mode := os.FileMode(header.Mode).Perm()
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, mode|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeMember(target, tr, mode); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return err
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}
		}
	}
}

func writeMember(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func withinRoot(root string, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

func (s SnapshotStoreFile) ClearPaths(ctx context.Context, paths []string) error {
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		clean := filepath.Clean(path)
		if clean == "" || clean == "." || clean == string(os.PathSeparator) {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("refusing to clear " + path)
		}
		if err := os.RemoveAll(clean); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to clear " + clean).
				WithCause(err)
		}
	}
	return nil
}

func (s SnapshotStoreFile) LatestPointer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, latestPointerName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("no latest snapshot recorded")
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s SnapshotStoreFile) SetLatestPointer(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.validate(id); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.Dir, latestPointerName), []byte(id+"\n"), 0o640); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write latest pointer").
			WithCause(err)
	}
	return nil
}

func (s SnapshotStoreFile) NewestByModTime(ctx context.Context) (types.Snapshot, bool, error) {
	snapshots, err := s.List(ctx)
	if err != nil {
		return types.Snapshot{}, false, err
	}
	if len(snapshots) == 0 {
		return types.Snapshot{}, false, nil
	}
	type candidate struct {
		snapshot types.Snapshot
		modTime  int64
	}
	candidates := make([]candidate, 0, len(snapshots))
	for _, snapshot := range snapshots {
		info, err := os.Stat(snapshot.Path)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{snapshot: snapshot, modTime: info.ModTime().UnixNano()})
	}
	if len(candidates) == 0 {
		return types.Snapshot{}, false, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].modTime != candidates[j].modTime {
			return candidates[i].modTime > candidates[j].modTime
		}
		return candidates[i].snapshot.ID > candidates[j].snapshot.ID
	})
	return candidates[0].snapshot, true, nil
}

func (s SnapshotStoreFile) manifestPath(id string) string {
	return filepath.Join(s.Dir, id+snapshotManifestExt)
}

func (s SnapshotStoreFile) root() string {
	if strings.TrimSpace(s.Root) == "" {
		return string(os.PathSeparator)
	}
	return filepath.Clean(s.Root)
}

func (s SnapshotStoreFile) validate(id string) error {
	if strings.TrimSpace(s.Dir) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("snapshot directory is empty")
	}
	if strings.TrimSpace(id) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("snapshot id is empty")
	}
	if strings.ContainsRune(id, os.PathSeparator) || id == latestPointerName {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid snapshot id " + id)
	}
	return nil
}

var _ ports.SnapshotStorePort = SnapshotStoreFile{}
