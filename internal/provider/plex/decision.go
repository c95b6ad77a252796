package plex

import (
	"encoding/json"
	"fmt"

	"github.com/flixor/flixor/internal/domain"
)

// Stream decisions reported by the transcode decision endpoint.
const (
	DecisionDirectPlay = "directplay"
	DecisionCopy       = "copy"
	DecisionTranscode  = "transcode"
)

// TranscodeDecision is the server's verdict on how a media part can be
// delivered for the capabilities declared in the decision request.
type TranscodeDecision struct {
	ContainerDecision string // "directplay", "copy" or "transcode"
	VideoDecision     string
	AudioDecision     string
	VideoCodec        string
	AudioCodec        string
	VideoBitrate      int
	AudioBitrate      int
	DecisionCode      int
	DecisionText      string
}

// parseTranscodeDecision extracts the per-stream verdicts from a decision
// response. Defaults live here and nowhere else: a missing video stream
// means the server will transcode it, a missing audio stream means it will
// be copied. Callers never re-default these fields.
func parseTranscodeDecision(body []byte) (*TranscodeDecision, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode decision response: %w", err)
	}

	mc := resp.MediaContainer
	if len(mc.Metadata) == 0 || len(mc.Metadata[0].Media) == 0 {
		return nil, fmt.Errorf("%w: no media in decision response", domain.ErrDecisionFailed)
	}

	dec := &TranscodeDecision{
		VideoDecision: DecisionTranscode,
		AudioDecision: DecisionCopy,
		DecisionCode:  mc.DirectPlayDecisionCode,
		DecisionText:  mc.DirectPlayDecisionText,
	}

	media := mc.Metadata[0].Media[0]
	if len(media.Part) > 0 {
		part := media.Part[0]
		dec.ContainerDecision = part.Decision

		// Only the first video and first audio stream count; later streams
		// are alternate tracks the session will not deliver.
		var haveVideo, haveAudio bool
		for _, s := range part.Stream {
			switch {
			case s.StreamType == 1 && !haveVideo:
				haveVideo = true
				if s.Decision != "" {
					dec.VideoDecision = s.Decision
				}
				dec.VideoCodec = s.Codec
				dec.VideoBitrate = s.Bitrate
			case s.StreamType == 2 && !haveAudio:
				haveAudio = true
				if s.Decision != "" {
					dec.AudioDecision = s.Decision
				}
				dec.AudioCodec = s.Codec
				dec.AudioBitrate = s.Bitrate
			}
		}
	}

	return dec, nil
}
