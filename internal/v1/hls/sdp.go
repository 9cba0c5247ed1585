package hls

import (
	"fmt"
	"os"
	"strings"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/rtc"
)

// rtpmapFor returns the "<encoding>/<clockrate>[/<channels>]" rtpmap value
// for a selected producer, matching the fixed codec table spec.md §4.2
// registers (Opus 48kHz/2ch; VP8 90kHz; H.264 baseline 90kHz).
func rtpmapFor(p *rtc.Producer) string {
	if p.Kind() == rtc.KindAudio {
		return "opus/48000/2"
	}
	if p.PayloadType() == 102 {
		return "H264/90000"
	}
	return "VP8/90000"
}

// writeSessionDescription writes the sdp file spec.md §4.9 step 3 describes:
// one m= line per selected producer (videos first, then audios), each with
// a matching rtpmap, at the local RTP port its plain transport listens on.
func writeSessionDescription(path string, videos, audios []pipelineLeg) error {
	var b strings.Builder
	b.WriteString("v=0\r\n")
	b.WriteString("o=- 0 0 IN IP4 127.0.0.1\r\n")
	b.WriteString("s=media-orchestrator-hls\r\n")
	b.WriteString("c=IN IP4 127.0.0.1\r\n")
	b.WriteString("t=0 0\r\n")

	for _, leg := range videos {
		fmt.Fprintf(&b, "m=video %d RTP/AVP %d\r\n", leg.transport.RTPPort(), leg.producer.PayloadType())
		fmt.Fprintf(&b, "a=rtpmap:%d %s\r\n", leg.producer.PayloadType(), rtpmapFor(leg.producer))
	}
	for _, leg := range audios {
		fmt.Fprintf(&b, "m=audio %d RTP/AVP %d\r\n", leg.transport.RTPPort(), leg.producer.PayloadType())
		fmt.Fprintf(&b, "a=rtpmap:%d %s\r\n", leg.producer.PayloadType(), rtpmapFor(leg.producer))
	}

	return os.WriteFile(path, []byte(b.String()), 0o644)
}
