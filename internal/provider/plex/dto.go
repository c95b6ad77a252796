package plex

// Wire DTOs for Plex JSON responses. Field defaults are applied only at the
// parse boundary (see decision.go), never at call sites.

// apiResponse wraps the outer MediaContainer envelope
type apiResponse struct {
	MediaContainer mediaContainer `json:"MediaContainer"`
}

type mediaContainer struct {
	Size                   int            `json:"size"`
	TotalSize              int            `json:"totalSize"`
	MachineIdentifier      string         `json:"machineIdentifier"`
	DirectPlayDecisionCode int            `json:"directPlayDecisionCode"`
	DirectPlayDecisionText string         `json:"directPlayDecisionText"`
	Metadata               []metadataItem `json:"Metadata"`
	Directory              []directory    `json:"Directory"`
}

type directory struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

type metadataItem struct {
	RatingKey        string       `json:"ratingKey"`
	Key              string       `json:"key"`
	Title            string       `json:"title"`
	Type             string       `json:"type"`
	Summary          string       `json:"summary"`
	Year             int          `json:"year"`
	AddedAt          int64        `json:"addedAt"`
	Duration         int64        `json:"duration"`   // milliseconds
	ViewOffset       int64        `json:"viewOffset"` // milliseconds
	ViewCount        int          `json:"viewCount"`
	LibrarySectionID any          `json:"librarySectionID"` // int or string depending on endpoint
	Thumb            string       `json:"thumb"`
	Art              string       `json:"art"`
	GrandparentTitle string       `json:"grandparentTitle"` // show title on episodes
	ParentIndex      int          `json:"parentIndex"`      // season number on episodes
	Index            int          `json:"index"`            // episode number
	Media            []mediaEntry `json:"Media"`
}

type mediaEntry struct {
	ID            any         `json:"id"`
	Bitrate       int         `json:"bitrate"`
	Width         int         `json:"width"`
	Height        int         `json:"height"`
	VideoCodec    string      `json:"videoCodec"`
	AudioCodec    string      `json:"audioCodec"`
	AudioChannels int         `json:"audioChannels"`
	Container     string      `json:"container"`
	Part          []partEntry `json:"Part"`
}

type partEntry struct {
	ID       any           `json:"id"`
	Key      string        `json:"key"`
	Decision string        `json:"decision"` // "directplay" when playable as-is
	Stream   []streamEntry `json:"Stream"`
}

// streamEntry is one elementary stream inside a media part.
// streamType: 1 = video, 2 = audio, 3 = subtitle.
type streamEntry struct {
	StreamType int    `json:"streamType"`
	Decision   string `json:"decision"` // "copy" or "transcode"
	Codec      string `json:"codec"`
	Bitrate    int    `json:"bitrate"`
}

// pinResponse is the plex.tv PIN create/check payload
type pinResponse struct {
	ID        int    `json:"id"`
	Code      string `json:"code"`
	AuthToken string `json:"authToken"`
	ExpiresAt string `json:"expiresAt"`
}

// userResponse is the plex.tv account payload used for token validation
type userResponse struct {
	ID       int64  `json:"id"`
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Thumb    string `json:"thumb"`
}

// resourceEntry is one device from /api/v2/resources
type resourceEntry struct {
	Name             string            `json:"name"`
	Product          string            `json:"product"`
	ClientIdentifier string            `json:"clientIdentifier"`
	Provides         string            `json:"provides"`
	AccessToken      string            `json:"accessToken"`
	Owned            bool              `json:"owned"`
	Connections      []connectionEntry `json:"connections"`
}

type connectionEntry struct {
	URI      string `json:"uri"`
	Protocol string `json:"protocol"`
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Local    bool   `json:"local"`
	Relay    bool   `json:"relay"`
}
