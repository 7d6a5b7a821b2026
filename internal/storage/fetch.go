package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Fetcher downloads input datasets into a local work directory in parallel.
type Fetcher struct {
	storage     ObjectStorage
	concurrency int
	workDir     string
}

// NewFetcher creates a fetcher.
// storage: the ObjectStorage implementation to download from
// concurrency: maximum number of parallel downloads
// workDir: directory receiving the downloaded files
func NewFetcher(storage ObjectStorage, concurrency int, workDir string) *Fetcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Fetcher{
		storage:     storage,
		concurrency: concurrency,
		workDir:     workDir,
	}
}

// Fetch downloads every object and returns objectPath -> localPath. The
// first failure is returned after in-flight downloads finish.
func (f *Fetcher) Fetch(ctx context.Context, objectPaths ...string) (map[string]string, error) {
	local := make(map[string]string, len(objectPaths))
	sem := semaphore.NewWeighted(int64(f.concurrency))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for i, p := range objectPaths {
		if err := sem.Acquire(ctx, 1); err != nil {
			setErr(fmt.Errorf("fetch: semaphore acquire failed: %w", err))
			break
		}

		dst := filepath.Join(f.workDir, fmt.Sprintf("%02d-%s", i, path.Base(filepath.ToSlash(p))))
		wg.Add(1)
		go func(objectPath, localPath string) {
			defer sem.Release(1)
			defer wg.Done()

			if err := f.storage.Download(ctx, objectPath, localPath); err != nil {
				setErr(err)
				return
			}
			mu.Lock()
			local[objectPath] = localPath
			mu.Unlock()
		}(p, dst)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return local, nil
}
