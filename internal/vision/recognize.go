package vision

import (
	"image"
	"log/slog"
	"math"
	"sort"

	"github.com/your-org/presence/internal/models"
)

// tieTolerance is the distance within which two references count as equidistant.
const tieTolerance = 1e-9

// Match is the recognition result for one face region.
// IdentityID is nil when the best reference scored below the match threshold.
type Match struct {
	IdentityID  *string
	DisplayName string
	Confidence  float32
}

// Recognizer matches face crops against the gallery by nearest cosine distance.
//
// Confidence is 1 - d/2 where d is the cosine distance in [0,2]. A match is accepted
// when confidence >= threshold. Equidistant references resolve to the smallest id.
type Recognizer struct {
	embedder  Embedder
	gallery   Gallery
	threshold float32
}

func NewRecognizer(embedder Embedder, gallery Gallery, threshold float32) *Recognizer {
	return &Recognizer{
		embedder:  embedder,
		gallery:   gallery,
		threshold: threshold,
	}
}

// Recognize returns one Match per box, in the same order.
func (r *Recognizer) Recognize(img image.Image, boxes []models.BoundingBox) []Match {
	matches := make([]Match, len(boxes))
	if len(boxes) == 0 {
		return matches
	}

	refs := sortedRefs(r.gallery.Snapshot())
	for i, box := range boxes {
		matches[i] = Match{DisplayName: models.UnknownName}

		face := cropFace(img, box)
		if face == nil {
			continue
		}
		probe, err := r.embedder.Embed(face)
		if err != nil {
			slog.Debug("embed face", "error", err, "box", box)
			continue
		}
		matches[i] = r.match(probe, refs)
	}
	return matches
}

// MatchVector finds the closest identity for an already-extracted probe vector.
func (r *Recognizer) MatchVector(probe []float32) Match {
	return r.match(probe, sortedRefs(r.gallery.Snapshot()))
}

func (r *Recognizer) match(probe []float32, refs []models.Identity) Match {
	result := Match{DisplayName: models.UnknownName}
	if len(probe) == 0 {
		return result
	}

	best := -1
	bestDist := math.MaxFloat64
	for i := range refs {
		if len(refs[i].Vector) != len(probe) {
			continue
		}
		d, ok := CosineDistance(probe, refs[i].Vector)
		if !ok {
			continue
		}
		// refs are sorted by id, so keeping the first of equal distances is the
		// lexicographic tie-break.
		if d < bestDist-tieTolerance {
			best = i
			bestDist = d
		}
	}
	if best < 0 {
		return result
	}

	conf := DistanceToConfidence(bestDist)
	result.Confidence = conf
	if conf >= r.threshold {
		id := refs[best].ID
		result.IdentityID = &id
		result.DisplayName = refs[best].DisplayName
	}
	return result
}

// Threshold returns the minimum confidence for an accepted match.
func (r *Recognizer) Threshold() float32 {
	return r.threshold
}

// CosineDistance returns 1 - cos(a, b) in [0,2]. ok is false when the vectors
// differ in length or either has zero norm.
func CosineDistance(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return 1 - cos, true
}

// DistanceToConfidence maps a cosine distance to a confidence in [0,1].
func DistanceToConfidence(d float64) float32 {
	c := 1 - d/2
	if c < 0 {
		c = 0
	} else if c > 1 {
		c = 1
	}
	return float32(c)
}

func sortedRefs(refs []models.Identity) []models.Identity {
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].ID < refs[j].ID
	})
	return refs
}
