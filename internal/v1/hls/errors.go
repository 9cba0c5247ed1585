package hls

import "errors"

// Sentinel errors spec.md §7 groups under "HLS". internal/room declares its
// own sentinels with the same codes and maps those onto wire error codes;
// these values are not part of that mapping.
var (
	ErrAlreadyRunning  = errors.New("hls: HLS_ALREADY_RUNNING")
	ErrNotRunning      = errors.New("hls: HLS_NOT_RUNNING")
	ErrSpawnFailed     = errors.New("hls: HLS_SPAWN_FAILED")
	ErrNoAudioProducers = errors.New("hls: NO_AUDIO_PRODUCERS")
	ErrBusy            = errors.New("hls: HLS_BUSY")
)
