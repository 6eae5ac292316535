/*
go-hazardar is the tracking and overlay rendering engine behind an AR
construction hazard viewer.  It turns a stream of camera frames and
asynchronous per-frame hazard detections into stable, prioritized,
screen-anchored overlay primitives at interactive frame rates.

The per-frame pipeline (predict, associate, project, layout) runs
synchronously on the caller's frame goroutine, detection backends run on
a background worker at an adaptive cadence and never block the frame
path.

See the example code and usage in the example subdirectory.
*/
package hazardar
