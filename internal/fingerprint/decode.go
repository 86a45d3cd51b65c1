package fingerprint

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/heic"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// maxFtypSize bounds the ftyp box read when sniffing HEIC content
const maxFtypSize = 256

// DecodeOptions controls how image files are decoded before hashing
type DecodeOptions struct {
	// AutoOrient applies the EXIF orientation tag of JPEG files
	AutoOrient bool
}

// Variant names the fingerprints produced by kind under these options.
// Options that change the decoded pixels change the variant.
func (o DecodeOptions) Variant(kind Kind) string {
	if o.AutoOrient {
		return string(kind) + "+oriented"
	}
	return string(kind)
}

// Decode reads an image from r. HEIC/HEIF files, recognised by extension
// (with or without the leading dot) or by their ftyp box, go to the dedicated
// decoder; everything else is sniffed by the registered decoders.
func Decode(r io.Reader, ext string, opts DecodeOptions) (image.Image, error) {
	br := bufio.NewReader(r)
	if isHEICExtension(ext) || isHEICHeader(br) {
		// Go's standard image package doesn't support HEIC
		img, err := heic.Decode(br)
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, err := imaging.Decode(br, imaging.AutoOrientation(opts.AutoOrient))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEICExtension checks if the extension belongs to a HEIC/HEIF file
func isHEICExtension(ext string) bool {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	return ext == "heic" || ext == "heif"
}

// isHEICHeader reads the ftyp box and reports whether its major or any
// compatible brand is a HEIC brand. The generic HEIF brands (mif1, msf1) are
// shared with AVIF and do not count on their own.
func isHEICHeader(br *bufio.Reader) bool {
	header, err := br.Peek(8)
	if err != nil || string(header[4:8]) != "ftyp" {
		return false
	}
	size := int(binary.BigEndian.Uint32(header[:4]))
	if size < 16 || size > maxFtypSize {
		return false
	}
	box, err := br.Peek(size)
	if err != nil {
		return false
	}
	// major brand at 8, minor version at 12, compatible brands from 16
	brands := []string{string(box[8:12])}
	for i := 16; i+4 <= size; i += 4 {
		brands = append(brands, string(box[i:i+4]))
	}
	for _, brand := range brands {
		switch brand {
		case "heic", "heix", "heim", "heis", "hevc", "hevx":
			return true
		}
	}
	return false
}
