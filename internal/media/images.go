// Package media resolves vehicle image URLs from storage paths, memoizing
// folder listings for the life of the process.
package media

import (
	"context"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// MaxImages is the most URLs returned for one vehicle.
const MaxImages = 3

const listTimeout = 5 * time.Second

type Lister interface {
	ListFolder(ctx context.Context, folder string) ([]string, error)
}

// FolderCache memoizes folder listings. Each folder is listed at most once
// at a time; failed listings are not cached.
type FolderCache struct {
	lister  Lister
	bucket  string
	baseURL string
	cache   *cache.Cache
	group   singleflight.Group
}

// NewFolderCache builds the cache. A ttl of zero keeps entries forever.
func NewFolderCache(lister Lister, bucket, publicBaseURL string, ttl time.Duration) *FolderCache {
	expiration, cleanup := ttl, ttl
	if ttl <= 0 {
		expiration, cleanup = cache.NoExpiration, 0
	}
	return &FolderCache{
		lister:  lister,
		bucket:  bucket,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		cache:   cache.New(expiration, cleanup),
	}
}

// FolderImageURLs returns public URLs for the images in folder, best first.
func (c *FolderCache) FolderImageURLs(ctx context.Context, folder string) []string {
	if folder == "" {
		return []string{}
	}
	if cached, ok := c.cache.Get(folder); ok {
		return cached.([]string)
	}

	result := c.group.DoChan(folder, func() (interface{}, error) {
		listCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), listTimeout)
		defer cancel()

		names, err := c.lister.ListFolder(listCtx, folder)
		if err != nil {
			return nil, err
		}
		sortImageNames(names)
		urls := make([]string, 0, len(names))
		for _, name := range names {
			urls = append(urls, c.PublicURL(folder+"/"+name))
		}
		c.cache.SetDefault(folder, urls)
		return urls, nil
	})

	select {
	case res := <-result:
		if res.Err != nil {
			log.WithField("folder", folder).Warnf("media: unable to list storage folder: %v", res.Err)
			return []string{}
		}
		return res.Val.([]string)
	case <-ctx.Done():
		return []string{}
	}
}

// ResolveImages turns up to three storage paths into at most MaxImages
// unique URLs. File paths are used as is; folders expand to their images.
func (c *FolderCache) ResolveImages(ctx context.Context, storagePaths []string) []string {
	var sources []string
	for _, p := range storagePaths {
		if normalized := NormalizeStoragePath(p, c.bucket); normalized != "" {
			sources = append(sources, normalized)
		}
	}
	if len(sources) == 0 {
		return []string{}
	}

	var urls []string
	for _, source := range sources {
		if HasFileExtension(source) {
			urls = append(urls, c.PublicURL(source))
		} else {
			urls = append(urls, c.FolderImageURLs(ctx, source)...)
		}
		if len(urls) >= MaxImages {
			break
		}
	}
	if len(urls) == 0 && !HasFileExtension(sources[0]) {
		urls = c.FolderImageURLs(ctx, sources[0])
	}

	return uniqueFirst(urls, MaxImages)
}

// PublicURL is the download URL of an object in the image bucket.
func (c *FolderCache) PublicURL(objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.baseURL + "/" + url.PathEscape(c.bucket) + "/" + strings.Join(segments, "/")
}

// NormalizeStoragePath trims slashes and a leading bucket name.
func NormalizeStoragePath(p, bucket string) string {
	cleaned := strings.Trim(strings.TrimSpace(p), "/")
	if bucket != "" {
		cleaned = strings.TrimPrefix(cleaned, bucket+"/")
	}
	return cleaned
}

func HasFileExtension(p string) bool {
	return strings.Contains(path.Base(p), ".")
}

// ImageScore orders exterior shots first, then interiors, then seating.
func ImageScore(name string) int {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "exterior"):
		return 0
	case strings.Contains(lower, "interior"), strings.Contains(lower, "inside"):
		return 1
	case strings.Contains(lower, "lounge"), strings.Contains(lower, "seating"):
		return 2
	default:
		return 3
	}
}

func sortImageNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		si, sj := ImageScore(names[i]), ImageScore(names[j])
		if si != sj {
			return si < sj
		}
		return names[i] < names[j]
	})
}

func uniqueFirst(values []string, limit int) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, limit)
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}
