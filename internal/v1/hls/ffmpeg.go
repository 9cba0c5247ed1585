package hls

// buildTranscoderArgs constructs the ffmpeg-compatible transcoder's argument
// list per spec.md §4.9 step 4: file/udp/rtp input whitelist reading the sdp,
// H.264/AAC output codecs, the hstack-or-scale video filter and
// amix-or-passthrough audio filter selected by how many producers of each
// kind were collected, and a 4s/5-segment sliding-window HLS output with
// delete_segments.
func buildTranscoderArgs(sdpPath, playlistPath string, videoCount, audioCount int) []string {
	args := []string{
		"-protocol_whitelist", "file,udp,rtp",
		"-i", sdpPath,
	}

	var filters []string
	var maps []string

	switch videoCount {
	case 2:
		filters = append(filters,
			"[0:v:0]scale=960:540[v0]",
			"[0:v:1]scale=960:540[v1]",
			"[v0][v1]hstack=inputs=2[vout]",
		)
		maps = append(maps, "-map", "[vout]")
	case 1:
		filters = append(filters, "[0:v:0]scale=1280:720[vout]")
		maps = append(maps, "-map", "[vout]")
	}

	switch audioCount {
	case 2:
		filters = append(filters, "[0:a:0][0:a:1]amix=inputs=2:duration=longest[aout]")
		maps = append(maps, "-map", "[aout]")
	case 1:
		maps = append(maps, "-map", "0:a:0")
	}

	if len(filters) > 0 {
		complex := filters[0]
		for _, f := range filters[1:] {
			complex += ";" + f
		}
		args = append(args, "-filter_complex", complex)
	}
	args = append(args, maps...)

	if videoCount > 0 {
		args = append(args, "-c:v", "libx264", "-preset", "ultrafast", "-tune", "zerolatency")
	}
	if audioCount > 0 {
		args = append(args, "-c:a", "aac")
	}

	args = append(args,
		"-f", "hls",
		"-hls_time", "4",
		"-hls_list_size", "5",
		"-hls_flags", "delete_segments",
		playlistPath,
	)
	return args
}
