// Package staging manages the scratch volume where sampled raw frames are
// written for an external detector.
//
// Manager mounts and unmounts the volume, clears frames left from earlier
// runs, and reports usage. Throttle raises a camera's frame skip as staged
// frames pile up and stops staging entirely past the high watermark.
package staging
