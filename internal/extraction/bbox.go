package extraction

import (
	"math"

	"github.com/rsamf/mink/internal/datastore"
)

// NormalizeBBox orders the corners of box so x1<=x2 and y1<=y2, and clamps
// confidence to [0,1]. Boxes that are not 4 values become empty, and an
// empty box always carries confidence 1.0.
func NormalizeBBox(box []int, confidence float64) (datastore.BBox, float64) {
	if len(box) != 4 {
		return datastore.BBox{}, 1.0
	}

	x1, y1, x2, y2 := box[0], box[1], box[2], box[3]
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}

	switch {
	case math.IsNaN(confidence):
		confidence = 0
	case confidence < 0:
		confidence = 0
	case confidence > 1:
		confidence = 1
	}
	return datastore.BBox{x1, y1, x2, y2}, confidence
}

// cornersToBBox converts a 4-point polygon (clockwise from top-left) into
// [x1,y1,x2,y2] using the first and third points.
func cornersToBBox(points [][2]float64) []int {
	if len(points) < 3 {
		return nil
	}
	return []int{
		int(points[0][0]),
		int(points[0][1]),
		int(points[2][0]),
		int(points[2][1]),
	}
}
