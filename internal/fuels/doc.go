// Package fuels segments a tree's vertical LAD profile into fuel layers
// and derives crown base height candidates from them.
//
// Stages, in order: DetectGaps, AssembleLayers, CorrectLayers,
// FilterByLAD, SelectCBH. Run chains them for one tree. Every stage
// returns freshly allocated slices and never mutates its inputs, so
// independent trees may be processed concurrently without locking.
//
// No I/O or plotting lives here; see internal/profile for loading and
// internal/report for output.
package fuels
