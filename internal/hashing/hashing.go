// Package hashing computes the exact and perceptual fingerprints used for
// deduplication.
package hashing

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"math/bits"
	"strconv"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	// MaxDistance is the distance reported for hashes that cannot be compared.
	MaxDistance = 64

	hashWidth  = 9
	hashHeight = 8
	hexLen     = 16
)

var ErrUndecodable = errors.New("hashing: payload is not a decodable still image")

// MD5 returns the lowercase hex MD5 of data.
func MD5(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Visual returns a 64-bit difference hash of the decoded image as 16 hex
// characters. Recompression and small rescales move only a few bits.
func Visual(data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return DHash(img), nil
}

// DHash computes the difference hash of an already decoded image.
func DHash(img image.Image) string {
	small := imaging.Resize(imaging.Grayscale(img), hashWidth, hashHeight, imaging.Lanczos)

	var h uint64
	for y := 0; y < hashHeight; y++ {
		for x := 0; x < hashWidth-1; x++ {
			h <<= 1
			if luma(small, x, y) < luma(small, x+1, y) {
				h |= 1
			}
		}
	}
	return fmt.Sprintf("%016x", h)
}

func luma(img *image.NRGBA, x, y int) uint8 {
	// Grayscale leaves R == G == B.
	return img.Pix[img.PixOffset(x, y)]
}

// Distance is the Hamming distance between two visual hashes.
func Distance(a, b string) int {
	if len(a) != hexLen || len(b) != hexLen {
		return MaxDistance
	}
	x, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return MaxDistance
	}
	y, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return MaxDistance
	}
	return bits.OnesCount64(x ^ y)
}

// Fingerprint carries both hashes of one payload. Visual is empty when the
// payload could not be decoded as an image.
type Fingerprint struct {
	MD5    string
	Visual string
}

func Compute(data []byte) Fingerprint {
	fp := Fingerprint{MD5: MD5(data)}
	if v, err := Visual(data); err == nil {
		fp.Visual = v
	}
	return fp
}
