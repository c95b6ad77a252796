package domain

import "time"

// PlexServer is one server resource a Plex account can reach
type PlexServer struct {
	ID          string // clientIdentifier of the server
	Name        string
	Product     string
	Owned       bool
	AccessToken string // server-scoped token, used instead of the account token
	Connections []PlexConnection
}

// PlexConnection is one candidate address for reaching a server
type PlexConnection struct {
	URI      string // full base URL, e.g. https://10-0-0-2.abc.plex.direct:32400
	Protocol string // http or https
	Address  string
	Port     int
	Local    bool // same LAN as the server
	Relay    bool // proxied through plex.tv relay infrastructure
}

// PlexUser is the plex.tv account a token belongs to
type PlexUser struct {
	ID       int64
	UUID     string
	Username string
	Email    string
	Thumb    string
}

// PlexPin is a device-link PIN issued by plex.tv
type PlexPin struct {
	ID        int
	Code      string
	ExpiresAt time.Time
}

// AuthRecord is the persisted authentication state: the account token plus
// the chosen server and connection. Stored encrypted; the three fields are
// only ever written together.
type AuthRecord struct {
	Token      string          `json:"token"`
	Server     *PlexServer     `json:"server,omitempty"`
	Connection *PlexConnection `json:"connection,omitempty"`
}
