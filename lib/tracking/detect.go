// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package tracking

// DefaultThresholdSquared is the squared displacement above which a
// move is significant: more than 5 world units in a straight line.
const DefaultThresholdSquared = 25.0

// Detector holds the significance policy.
type Detector struct {
	// ThresholdSquared is the squared distance a position must exceed
	// to count as movement. Non-positive values use
	// DefaultThresholdSquared.
	ThresholdSquared float64
}

// ThresholdFromDistance returns a Detector whose threshold is the
// square of a straight-line distance.
func ThresholdFromDistance(distance float64) Detector {
	return Detector{ThresholdSquared: distance * distance}
}

func (d Detector) threshold() float64 {
	if d.ThresholdSquared <= 0 {
		return DefaultThresholdSquared
	}
	return d.ThresholdSquared
}

// Significant reports whether current differs from previous enough to
// be re-reported: any flag differs or the squared displacement exceeds
// the threshold.
func (d Detector) Significant(previous, current Entity) bool {
	if previous.TrackingFlags() != current.TrackingFlags() {
		return true
	}
	return previous.TrackingPosition().DistanceSquared(current.TrackingPosition()) > d.threshold()
}

// Detect returns the entities of current that are absent from previous
// or significantly changed relative to it, ordered by key. Entities
// only in previous are not reported. The returned values are copies.
func Detect[E Entity](previous, current Snapshot[E]) []E {
	return DetectWith(Detector{}, previous, current)
}

// DetectWith is Detect with an explicit policy.
func DetectWith[E Entity](detector Detector, previous, current Snapshot[E]) []E {
	var changed []E
	for _, key := range current.Keys() {
		entity := current[key]
		before, seen := previous[key]
		if !seen || detector.Significant(before, entity) {
			changed = append(changed, entity)
		}
	}
	return changed
}
