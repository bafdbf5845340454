package vector

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
)

const metadataFormatVersion = 1

// metadataFile is the on-disk layout of the metadata blob.
type metadataFile struct {
	Version    int                        `json:"version"`
	IndexType  string                     `json:"index_type"`
	Dimensions int                        `json:"dimensions"`
	Count      int                        `json:"count"`
	Entries    map[string]json.RawMessage `json:"entries"`
}

// Paths returns the vector blob and metadata file paths.
func (x *Index) Paths() (indexPath, metadataPath string) {
	return x.indexPath, x.metadataPath
}

// Persist writes the vector blob and the metadata file as one unit: both are written to
// temporary files first and then renamed into place. If the second rename fails the previous
// vector blob is restored, so the pair on disk is either the old one or the new one. With no
// paths configured Persist is a no-op. On failure the in-memory index is untouched and remains
// usable.
func (x *Index) Persist() error {
	if x.indexPath == "" || x.metadataPath == "" {
		return nil
	}
	x.persistMu.Lock()
	defer x.persistMu.Unlock()
	x.mu.RLock()
	defer x.mu.RUnlock()

	mf := metadataFile{
		Version:    metadataFormatVersion,
		IndexType:  x.backend.Type(),
		Dimensions: x.backend.Dimensions(),
		Count:      len(x.metadata),
		Entries:    make(map[string]json.RawMessage, len(x.metadata)),
	}
	for i, meta := range x.metadata {
		raw, err := json.Marshal(meta)
		if err != nil {
			return wrapError("persist", fmt.Errorf("%w: encode metadata %d: %v", ErrPersistence, i, err))
		}
		mf.Entries[strconv.Itoa(i)] = raw
	}

	vecTmp, err := writeTemp(x.indexPath, x.backend.Encode)
	if err != nil {
		return wrapError("persist", fmt.Errorf("%w: vectors %s: %v", ErrPersistence, x.indexPath, err))
	}
	metaTmp, err := writeTemp(x.metadataPath, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(mf)
	})
	if err != nil {
		removeFiles(vecTmp)
		return wrapError("persist", fmt.Errorf("%w: metadata %s: %v", ErrPersistence, x.metadataPath, err))
	}
	if err := replacePair(vecTmp, x.indexPath, metaTmp, x.metadataPath); err != nil {
		return wrapError("persist", fmt.Errorf("%w: %v", ErrPersistence, err))
	}
	x.logger.Info("vector index persisted",
		zap.String("index_path", x.indexPath),
		zap.String("metadata_path", x.metadataPath),
		zap.Int("vectors", len(x.metadata)))
	return nil
}

// Load replaces the in-memory contents with the persisted files. When neither file exists the
// index is reset to empty. One file without the other, a backend or dimension mismatch, or a
// count mismatch is reported as ErrConsistency and leaves the index unchanged. Load holds the
// write lock while it reads, so adds and searches wait for it.
func (x *Index) Load() error {
	if x.indexPath == "" || x.metadataPath == "" {
		return nil
	}
	x.persistMu.Lock()
	defer x.persistMu.Unlock()
	x.mu.Lock()
	defer x.mu.Unlock()

	vecExists, err := fileExists(x.indexPath)
	if err != nil {
		return wrapError("load", fmt.Errorf("%w: %v", ErrPersistence, err))
	}
	metaExists, err := fileExists(x.metadataPath)
	if err != nil {
		return wrapError("load", fmt.Errorf("%w: %v", ErrPersistence, err))
	}
	switch {
	case !vecExists && !metaExists:
		x.backend.Reset()
		x.metadata = nil
		x.logger.Info("vector index files not found, starting empty",
			zap.String("index_path", x.indexPath))
		return nil
	case vecExists && !metaExists:
		return wrapError("load", fmt.Errorf("%w: %s present without %s", ErrConsistency, x.indexPath, x.metadataPath))
	case !vecExists && metaExists:
		return wrapError("load", fmt.Errorf("%w: %s present without %s", ErrConsistency, x.metadataPath, x.indexPath))
	}

	backend, err := NewBackend(x.backend.Type(), x.backend.Dimensions())
	if err != nil {
		return wrapError("load", err)
	}
	vf, err := os.Open(x.indexPath)
	if err != nil {
		return wrapError("load", fmt.Errorf("%w: open %s: %v", ErrPersistence, x.indexPath, err))
	}
	decodeErr := backend.Decode(vf)
	_ = vf.Close()
	if decodeErr != nil {
		_ = backend.Close()
		if !errors.Is(decodeErr, ErrConsistency) {
			decodeErr = fmt.Errorf("%w: %v", ErrConsistency, decodeErr)
		}
		return wrapError("load", decodeErr)
	}

	metadata, err := readMetadataFile(x.metadataPath, backend)
	if err != nil {
		_ = backend.Close()
		return wrapError("load", err)
	}

	if err := x.backend.Close(); err != nil {
		x.logger.Warn("closing replaced backend failed", zap.Error(err))
	}
	x.backend = backend
	x.metadata = metadata
	x.logger.Info("vector index loaded",
		zap.String("index_path", x.indexPath),
		zap.String("type", backend.Type()),
		zap.Int("vectors", backend.Size()))
	return nil
}

func readMetadataFile(path string, backend Backend) ([]Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrPersistence, path, err)
	}
	var mf metadataFile
	if err := json.Unmarshal(raw, &mf); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrConsistency, path, err)
	}
	if mf.IndexType != backend.Type() {
		return nil, fmt.Errorf("%w: metadata written for %q index, have %q", ErrConsistency, mf.IndexType, backend.Type())
	}
	if mf.Dimensions != backend.Dimensions() {
		return nil, fmt.Errorf("%w: metadata dimension %d, index expects %d", ErrConsistency, mf.Dimensions, backend.Dimensions())
	}
	if mf.Count != backend.Size() || len(mf.Entries) != backend.Size() {
		return nil, fmt.Errorf("%w: %d vectors but %d metadata records", ErrConsistency, backend.Size(), len(mf.Entries))
	}
	metadata := make([]Metadata, mf.Count)
	for i := 0; i < mf.Count; i++ {
		entry, ok := mf.Entries[strconv.Itoa(i)]
		if !ok {
			return nil, fmt.Errorf("%w: no metadata for position %d", ErrConsistency, i)
		}
		meta, err := decodeMetadata(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: position %d: %v", ErrConsistency, i, err)
		}
		metadata[i] = meta
	}
	return metadata, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// rename is os.Rename; tests replace it to simulate a failed rename.
var rename = os.Rename

// writeTemp writes a synced temporary file next to path and returns its name.
func writeTemp(path string, write func(io.Writer) error) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	bw := bufio.NewWriter(tmp)
	err = write(bw)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return tmpPath, nil
}

// replacePair renames vecTmp over vecPath and then metaTmp over metaPath. When the second
// rename fails, vecPath is put back the way it was.
func replacePair(vecTmp, vecPath, metaTmp, metaPath string) error {
	backup, err := backupFile(vecPath)
	if err != nil {
		removeFiles(vecTmp, metaTmp)
		return fmt.Errorf("back up %s: %w", vecPath, err)
	}
	if err := rename(vecTmp, vecPath); err != nil {
		removeFiles(vecTmp, metaTmp, backup)
		return err
	}
	if err := rename(metaTmp, metaPath); err != nil {
		removeFiles(metaTmp)
		if backup == "" {
			removeFiles(vecPath)
			return err
		}
		if rerr := rename(backup, vecPath); rerr != nil {
			return fmt.Errorf("%v; restore %s: %v", err, vecPath, rerr)
		}
		return err
	}
	removeFiles(backup)
	syncDir(filepath.Dir(vecPath))
	if filepath.Dir(metaPath) != filepath.Dir(vecPath) {
		syncDir(filepath.Dir(metaPath))
	}
	return nil
}

// backupFile hard-links path to a fresh name in the same directory, copying when links are
// not supported. It returns "" when path does not exist.
func backupFile(path string) (string, error) {
	exists, err := fileExists(path)
	if err != nil || !exists {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".bak-*")
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	_ = tmp.Close()
	_ = os.Remove(name)
	if err := os.Link(path, name); err == nil {
		return name, nil
	}
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()
	return writeTemp(path, func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	})
}

func removeFiles(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}

// syncDir fsyncs the directory so the rename survives a crash; errors are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
