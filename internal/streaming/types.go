// Package streaming decides how a media item reaches the player and
// manages the server transcode sessions that back remuxed or re-encoded
// playback.
package streaming

// Session protocols the server can produce.
const (
	ProtocolHLS  = "hls"
	ProtocolDASH = "dash"
)

// Options states what the caller permits and requests for one playback
// attempt. The zero value permits nothing; start from DefaultOptions.
type Options struct {
	// Protocol selects the session container, hls by default.
	Protocol string

	// DirectPlay permits handing the player the original file.
	DirectPlay bool

	// DirectStream permits a remux session: new container, same streams.
	DirectStream bool

	// MaxVideoBitrate caps the session bitrate in kbps. Zero means no cap
	// and the parameter is omitted so the server keeps source quality.
	MaxVideoBitrate int

	// VideoResolution caps the session resolution, e.g. "1920x1080".
	// Empty means source resolution and the parameter is omitted entirely.
	// It must never be sent with an empty value: the server reads that as
	// a request for its own default and silently downscales.
	VideoResolution string

	// AudioStreamID and SubtitleStreamID select non-default tracks.
	AudioStreamID    string
	SubtitleStreamID string

	// AutoAdjustQuality lets the server vary quality mid-session.
	AutoAdjustQuality bool
}

// DefaultOptions permits every delivery method at source quality.
func DefaultOptions() Options {
	return Options{Protocol: ProtocolHLS, DirectPlay: true, DirectStream: true}
}

func (o Options) protocol() string {
	if o.Protocol == ProtocolDASH {
		return ProtocolDASH
	}
	return ProtocolHLS
}

// Method is how the player receives the item.
type Method int

const (
	// MethodDirectPlay plays the original file unmodified.
	MethodDirectPlay Method = iota
	// MethodDirectStream plays a server remux.
	MethodDirectStream
	// MethodTranscode plays a server re-encode.
	MethodTranscode
)

func (m Method) String() string {
	switch m {
	case MethodDirectPlay:
		return "directplay"
	case MethodDirectStream:
		return "directstream"
	case MethodTranscode:
		return "transcode"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the method as its string name.
func (m Method) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// Decision is the negotiated outcome for one playback attempt. It is
// immutable once returned; the fallback path issues a fresh Decision with
// a fresh SessionID instead of mutating an old one.
type Decision struct {
	// Method is the cheapest delivery the server verdict and the caller's
	// options agree on.
	Method Method

	// URL is what the attempt proceeds with: the raw file URL for
	// DirectPlay, otherwise the session start URL to exchange through
	// StartSession.
	URL string

	// Server verdicts behind the classification. CanDirectStream and
	// WillTranscode derive from the same video stream decision and are
	// never both true.
	CanDirectPlay   bool
	CanDirectStream bool
	WillTranscode   bool
	VideoDecision   string
	AudioDecision   string
	VideoCodec      string
	AudioCodec      string

	// SessionID ties the decision to the start, timeline and stop calls
	// of this attempt.
	SessionID string
}
