// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package runstore persists runs on the local filesystem with a
// BadgerDB index for listing. Every run gets its own directory:
//
//	<root>/runs/<run_id>/input/      raw uploads as received
//	<root>/runs/<run_id>/artifacts/  step outputs as JSON
//	<root>/runs/<run_id>/trace/      append-only trace.jsonl
//
// Artifact writes are atomic (temp file then rename) so a crashed run
// never leaves a half-written JSON document behind.
package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/DocFill/services/extract/contracts"
)

// Artifact names. Steps write these; readers look them up by constant,
// never by globbing.
const (
	ArtifactSchema     = "schema.json"
	ArtifactDocIndex   = "doc_index.json"
	ArtifactLayout     = "layout.json"
	ArtifactRouting    = "routing.json"
	ArtifactCandidates = "candidates.json"
	ArtifactFinal      = "final.json"
)

const (
	runsDirName      = "runs"
	inputDirName     = "input"
	artifactsDirName = "artifacts"
	traceDirName     = "trace"
	traceFileName    = "trace.jsonl"

	dirPerm  = 0750
	filePerm = 0640
)

// Store manages the run directory tree under a single root.
//
// Thread Safety: Safe for concurrent use; per-run trace appends are
// serialized by the Run.
type Store struct {
	root string
}

// NewStore creates the runs directory under root if needed.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty store root", contracts.ErrRunStorage)
	}
	if err := os.MkdirAll(filepath.Join(root, runsDirName), dirPerm); err != nil {
		return nil, fmt.Errorf("%w: create runs dir: %v", contracts.ErrRunStorage, err)
	}
	return &Store{root: root}, nil
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.root
}

// NewRunID builds a sortable run identifier: a UTC second stamp plus
// eight hex characters of randomness. Lexical order is creation order.
func NewRunID(now time.Time) string {
	stamp := now.UTC().Format("20060102T150405Z")
	return stamp + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// CreateRun allocates a run directory with its three subdirectories.
func (s *Store) CreateRun(now time.Time) (*Run, error) {
	id := NewRunID(now)
	dir := filepath.Join(s.root, runsDirName, id)
	for _, sub := range []string{inputDirName, artifactsDirName, traceDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), dirPerm); err != nil {
			return nil, fmt.Errorf("%w: create run dir %s: %v", contracts.ErrRunStorage, id, err)
		}
	}
	return &Run{id: id, dir: dir}, nil
}

// OpenRun returns an existing run or an error when its directory is
// missing.
func (s *Store) OpenRun(id string) (*Run, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("invalid run id %q", id)
	}
	dir := filepath.Join(s.root, runsDirName, id)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return &Run{id: id, dir: dir}, nil
}

// Run is one allocated run directory.
//
// Thread Safety: Artifact writes to distinct names may run
// concurrently; trace appends are serialized internally.
type Run struct {
	id  string
	dir string

	traceMu sync.Mutex
}

// ID returns the run identifier.
func (r *Run) ID() string {
	return r.id
}

// Dir returns the run's directory.
func (r *Run) Dir() string {
	return r.dir
}

// SaveInput stores one uploaded document under input/ and returns the
// stored path. The name is flattened to its base to keep uploads from
// escaping the run directory.
func (r *Run) SaveInput(filename string, data []byte) (string, error) {
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "", fmt.Errorf("invalid input filename %q", filename)
	}
	path := filepath.Join(r.dir, inputDirName, name)
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return "", fmt.Errorf("%w: save input %s: %v", contracts.ErrRunStorage, name, err)
	}
	return path, nil
}

// WriteArtifact marshals v and atomically writes artifacts/<name>.
func (r *Run) WriteArtifact(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact %s: %w", name, err)
	}
	path := filepath.Join(r.dir, artifactsDirName, name)
	if err := atomicWrite(path, data); err != nil {
		return fmt.Errorf("%w: write artifact %s: %v", contracts.ErrRunStorage, name, err)
	}
	return nil
}

// ReadArtifact unmarshals artifacts/<name> into v.
func (r *Run) ReadArtifact(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(r.dir, artifactsDirName, name))
	if err != nil {
		return fmt.Errorf("read artifact %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode artifact %s: %w", name, err)
	}
	return nil
}

// HasArtifact reports whether artifacts/<name> exists.
func (r *Run) HasArtifact(name string) bool {
	_, err := os.Stat(filepath.Join(r.dir, artifactsDirName, name))
	return err == nil
}

// TracePath returns the path of the run's trace log.
func (r *Run) TracePath() string {
	return filepath.Join(r.dir, traceDirName, traceFileName)
}

// atomicWrite writes data to a sibling temp file and renames it into
// place. Rename is atomic on POSIX filesystems, so readers see either
// the old content or the new, never a torn write.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
