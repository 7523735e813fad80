package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/arcfetch/internal/utils"
	"gopkg.in/yaml.v3"
)

const DefaultFile = "gallery_refs.yaml"

// EnumerateFunc produces the gallery list when the cache is missing or stale.
type EnumerateFunc func(ctx context.Context) ([]utils.GalleryRef, error)

// Load reads cached gallery URLs. A missing file returns an error matching fs.ErrNotExist.
func Load(path string) ([]utils.GalleryRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var urls []string
	if err := yaml.Unmarshal(data, &urls); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}
	refs := make([]utils.GalleryRef, 0, len(urls))
	for _, u := range urls {
		ref, err := utils.ParseGalleryURL(u)
		if err != nil {
			log.Warn().Str("op", "cache/load").Msgf("ignoring cached entry %q", u)
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func Save(path string, refs []utils.GalleryRef) error {
	urls := make([]string, len(refs))
	for i, ref := range refs {
		urls[i] = ref.URL
	}
	data, err := yaml.Marshal(urls)
	if err != nil {
		return fmt.Errorf("error encoding gallery list: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating %s: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error saving %s: %w", path, err)
	}
	return nil
}

func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// LoadOrEnumerate returns the cached list unless it is missing or refresh is set,
// in which case it enumerates and stores the result. The bool reports a cache hit.
func LoadOrEnumerate(ctx context.Context, path string, refresh bool, enumerate EnumerateFunc) ([]utils.GalleryRef, bool, error) {
	if !refresh {
		refs, err := Load(path)
		if err == nil {
			log.Info().Str("op", "cache/load").Msgf("using %d cached galleries from %s", len(refs), path)
			return refs, true, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, false, err
		}
	}
	refs, err := enumerate(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := Save(path, refs); err != nil {
		return nil, false, err
	}
	log.Info().Str("op", "cache/save").Msgf("saved %d galleries to %s", len(refs), path)
	return refs, false, nil
}
