// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Quality selects between a recorder's full-resolution and reduced streams.
type Quality string

const (
	QualityMain Quality = "main"
	QualitySub  Quality = "sub"
)

// SourceDescriptor identifies one live stream. Identity is the pool key:
// two descriptors with the same Identity share a single connection.
type SourceDescriptor struct {
	Identity string  `json:"identity" validate:"required"`
	URI      string  `json:"uri" validate:"required,mediauri"`
	Quality  Quality `json:"quality" validate:"omitempty,oneof=main sub"`
}

// Device is a network video recorder or standalone camera.
type Device struct {
	ID       string `json:"id" koanf:"id" validate:"required"`
	Name     string `json:"name" koanf:"name"`
	Host     string `json:"host" koanf:"host" validate:"required,hostname|ip"`
	RTSPPort int    `json:"rtsp_port" koanf:"rtsp_port" validate:"omitempty,min=1,max=65535"`
	Username string `json:"username" koanf:"username"`
	Password string `json:"-" koanf:"password"`
}

// Camera is a channel on a Device.
type Camera struct {
	ID         string `json:"id" koanf:"id" validate:"required"`
	DeviceID   string `json:"device_id" koanf:"device_id" validate:"required"`
	Channel    int    `json:"channel" koanf:"channel" validate:"min=1,max=512"`
	Name       string `json:"name" koanf:"name"`
	RTSPURL    string `json:"rtsp_url,omitempty" koanf:"rtsp_url" validate:"omitempty,mediauri"`
	RTSPURLSub string `json:"rtsp_url_sub,omitempty" koanf:"rtsp_url_sub" validate:"omitempty,mediauri"`
}

// DefaultRTSPPort is used when a device does not configure one.
const DefaultRTSPPort = 554

func (d *Device) port() int {
	if d.RTSPPort > 0 {
		return d.RTSPPort
	}
	return DefaultRTSPPort
}

func (d *Device) authority() string {
	host := fmt.Sprintf("%s:%d", d.Host, d.port())
	if d.Username == "" {
		return host
	}
	return url.UserPassword(d.Username, d.Password).String() + "@" + host
}

// StreamIdentity returns the pool key for a camera: user, host, port and
// channel. The password is left out so identities are safe to log.
func StreamIdentity(cam *Camera, dev *Device) string {
	user := dev.Username
	if user == "" {
		user = "anonymous"
	}
	return fmt.Sprintf("%s@%s:%d/%d", user, dev.Host, dev.port(), cam.Channel)
}

// LiveURI returns the RTSP URI for the requested quality. Configured URLs win;
// otherwise the recorder's Streaming/Channels convention is used (01 = main,
// 02 = sub). A sub request falls back to the main URL when only that is set.
func LiveURI(cam *Camera, dev *Device, q Quality) string {
	if q == QualitySub && cam.RTSPURLSub != "" {
		return cam.RTSPURLSub
	}
	if cam.RTSPURL != "" {
		return cam.RTSPURL
	}
	suffix := "01"
	if q == QualitySub {
		suffix = "02"
	}
	return fmt.Sprintf("rtsp://%s/Streaming/Channels/%d%s", dev.authority(), cam.Channel, suffix)
}

// LiveDescriptor builds the descriptor a cell uses to lease a live stream.
func LiveDescriptor(cam *Camera, dev *Device, q Quality) SourceDescriptor {
	uri := LiveURI(cam, dev, q)
	if q == QualitySub && cam.RTSPURLSub == "" && cam.RTSPURL != "" {
		q = QualityMain
	}
	return SourceDescriptor{
		Identity: StreamIdentity(cam, dev),
		URI:      uri,
		Quality:  q,
	}
}

// PlaybackURI returns the recorded-track URI template for a camera.
func PlaybackURI(cam *Camera, dev *Device) string {
	return fmt.Sprintf("rtsp://%s/Streaming/tracks/%d01", dev.authority(), cam.Channel)
}

// StartTimeLayout is the compact UTC layout recorders expect in the
// starttime query parameter.
const StartTimeLayout = "20060102T150405Z"

// WithStartTime appends a starttime parameter to a playback URI, using '&'
// when the URI already carries a query string.
func WithStartTime(uri string, t time.Time) string {
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	return uri + sep + "starttime=" + t.UTC().Format(StartTimeLayout)
}

// IsSubStreamURI applies the recorder naming convention: channel paths
// ending in 02 are sub streams.
func IsSubStreamURI(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return strings.Contains(uri, "02")
	}
	return strings.HasSuffix(strings.TrimRight(u.Path, "/"), "02")
}

// RedactURI strips credentials from a URI before it reaches a log line.
func RedactURI(uri string) string {
	scheme := strings.Index(uri, "://")
	if scheme < 0 {
		return uri
	}
	rest := uri[scheme+3:]
	authority := rest
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		authority = rest[:slash]
	}
	at := strings.LastIndexByte(authority, '@')
	if at < 0 {
		return uri
	}
	return uri[:scheme+3] + "***@" + rest[at+1:]
}
