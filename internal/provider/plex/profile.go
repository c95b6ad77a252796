package plex

import "strings"

// ProfileExtra builds the X-Plex-Client-Profile-Extra value declaring what
// the client can decode without server help. Directive order is fixed so
// the value is deterministic across runs and processes.
//
// The profile direct-plays h264/hevc in mp4 and mkv, direct-streams the same
// codecs into the session container, targets h264 when the server must
// re-encode, and bounds level, bit depth and width so the server never hands
// back a stream the player cannot open.
func ProfileExtra(protocol string) string {
	targetContainer := "mpegts"
	if protocol == "dash" {
		targetContainer = "mp4"
	}

	directives := []string{
		"add-direct-play-profile(type=videoProfile&container=mp4&videoCodec=h264,hevc&audioCodec=aac,ac3,eac3)",
		"add-direct-play-profile(type=videoProfile&container=mkv&videoCodec=h264,hevc&audioCodec=aac,ac3,eac3,flac)",
		"add-direct-stream-profile(type=videoProfile&container=" + targetContainer + "&videoCodec=h264,hevc&audioCodec=aac,ac3,eac3)",
		"add-transcode-target(type=videoProfile&context=streaming&protocol=" + protocol +
			"&container=" + targetContainer + "&videoCodec=h264&audioCodec=aac)",
		"add-limitation(scope=videoCodec&scopeName=h264&type=upperBound&name=video.level&value=52)",
		"add-limitation(scope=videoCodec&scopeName=hevc&type=upperBound&name=video.bitDepth&value=10)",
		"add-limitation(scope=videoCodec&scopeName=*&type=upperBound&name=video.width&value=3840)",
	}

	return strings.Join(directives, "+")
}
