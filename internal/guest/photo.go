package guest

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	MaxPhotoBytes = 5 << 20
	PhotoMaxSide  = 800
	photoQuality  = 80
)

var (
	ErrPhotoTooLarge   = errors.New("photo exceeds 5MB")
	ErrUnsupportedType = errors.New("photo must be a jpeg, png or webp image")
)

// PhotoStore keeps guest photos on local disk under Dir.
type PhotoStore struct {
	Dir     string
	BaseURL string
}

func NewPhotoStore(dir, baseURL string) *PhotoStore {
	return &PhotoStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}
}

// decodePhoto sniffs the content type and falls back to the file extension.
func decodePhoto(data []byte, filename string) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}
	format := ""
	switch mt := mimetype.Detect(data); {
	case mt.Is("image/jpeg"):
		format = "jpeg"
	case mt.Is("image/png"):
		format = "png"
	case mt.Is("image/webp"):
		format = "webp"
	default:
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".jpg", ".jpeg":
			format = "jpeg"
		case ".png":
			format = "png"
		case ".webp":
			format = "webp"
		default:
			return nil, ErrUnsupportedType
		}
	}

	r := bytes.NewReader(data)
	var (
		img image.Image
		err error
	)
	switch format {
	case "jpeg":
		img, err = jpeg.Decode(r)
	case "png":
		img, err = png.Decode(r)
	default:
		img, err = webp.Decode(r)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s photo", format)
	}
	return img, nil
}

// normalize downsizes img to fit PhotoMaxSide and encodes it as WebP.
func normalize(img image.Image) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() > PhotoMaxSide || b.Dy() > PhotoMaxSide {
		img = imaging.Fit(img, PhotoMaxSide, PhotoMaxSide, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: photoQuality}); err != nil {
		return nil, errors.Wrap(err, "encode webp")
	}
	return buf.Bytes(), nil
}

// Save stores one photo and returns its path relative to Dir.
func (p *PhotoStore) Save(eventID uint, filename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxPhotoBytes+1))
	if err != nil {
		return "", errors.Wrap(err, "read photo")
	}
	if len(data) > MaxPhotoBytes {
		return "", ErrPhotoTooLarge
	}
	img, err := decodePhoto(data, filename)
	if err != nil {
		return "", err
	}
	out, err := normalize(img)
	if err != nil {
		return "", err
	}

	rel := filepath.ToSlash(filepath.Join("events", fmt.Sprint(eventID), "guests", uuid.NewString()+".webp"))
	full := filepath.Join(p.Dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", errors.Wrap(err, "create photo dir")
	}
	if err := os.WriteFile(full, out, 0o644); err != nil {
		return "", errors.Wrap(err, "write photo")
	}
	return rel, nil
}

// Remove deletes a stored photo; a missing file is not an error.
func (p *PhotoStore) Remove(rel string) error {
	if rel == "" {
		return nil
	}
	err := os.Remove(filepath.Join(p.Dir, filepath.FromSlash(rel)))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove photo")
	}
	return nil
}

func (p *PhotoStore) URL(rel string) string {
	if rel == "" {
		return ""
	}
	return p.BaseURL + "/uploads/" + rel
}

// Stored walks Dir/events and returns every photo path relative to Dir.
func (p *PhotoStore) Stored() ([]string, error) {
	root := filepath.Join(p.Dir, "events")
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".webp" {
			return nil
		}
		rel, err := filepath.Rel(p.Dir, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out, errors.Wrap(err, "scan photos")
}
