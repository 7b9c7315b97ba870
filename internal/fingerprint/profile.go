// Package fingerprint describes how outbound traffic presents itself:
// the TLS ClientHello and HTTP/2 settings of a desktop Chrome, the matching
// request headers, a pool of user agents, and the detection and solving of
// simple interstitial challenges.
package fingerprint

import (
	"fmt"
	"strconv"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// TLS extension IDs used in the Chrome profile.
const (
	extServerName          uint16 = 0
	extStatusRequest       uint16 = 5
	extSupportedCurves     uint16 = 10
	extPointFormats        uint16 = 11
	extSignatureAlgorithms uint16 = 13
	extALPN                uint16 = 16
	extSCT                 uint16 = 18
	extPadding             uint16 = 21
	extExtendedMasterSec   uint16 = 23
	extCompressCert        uint16 = 27
	extSessionTicket       uint16 = 35
	extSupportedVersions   uint16 = 43
	extPSKModes            uint16 = 45
	extKeyShare            uint16 = 51
	extALPS                uint16 = 17513
	extRenegotiationInfo   uint16 = 65281
)

// H2Settings is the HTTP/2 SETTINGS frame a browser sends on connect.
type H2Settings struct {
	HeaderTableSize      uint32
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32
}

// Profile is an immutable description of a browser's network fingerprint.
// Order matters in every slice: servers fingerprint the exact sequence.
type Profile struct {
	Name                string
	MinVersion          uint16
	MaxVersion          uint16
	CipherSuites        []uint16
	Extensions          []uint16
	Curves              []utls.CurveID
	SignatureAlgorithms []utls.SignatureScheme
	ALPN                []string
	HTTP2               H2Settings
	PseudoHeaderOrder   []string
}

// Chrome returns the desktop Chrome 122 profile.
func Chrome() *Profile {
	return &Profile{
		Name:       "chrome_122",
		MinVersion: utls.VersionTLS12,
		MaxVersion: utls.VersionTLS13,
		CipherSuites: []uint16{
			utls.TLS_AES_128_GCM_SHA256,
			utls.TLS_AES_256_GCM_SHA384,
			utls.TLS_CHACHA20_POLY1305_SHA256,
			utls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			utls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			utls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			utls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			utls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			utls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
			utls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
			utls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
			utls.TLS_RSA_WITH_AES_128_GCM_SHA256,
			utls.TLS_RSA_WITH_AES_256_GCM_SHA384,
			utls.TLS_RSA_WITH_AES_128_CBC_SHA,
			utls.TLS_RSA_WITH_AES_256_CBC_SHA,
		},
		Extensions: []uint16{
			extServerName,
			extExtendedMasterSec,
			extRenegotiationInfo,
			extSupportedCurves,
			extPointFormats,
			extSessionTicket,
			extALPN,
			extStatusRequest,
			extSignatureAlgorithms,
			extSCT,
			extKeyShare,
			extPSKModes,
			extSupportedVersions,
			extCompressCert,
			extALPS,
			extPadding,
		},
		Curves: []utls.CurveID{
			utls.X25519,
			utls.CurveP256,
			utls.CurveP384,
		},
		SignatureAlgorithms: []utls.SignatureScheme{
			utls.ECDSAWithP256AndSHA256,
			utls.PSSWithSHA256,
			utls.PKCS1WithSHA256,
			utls.ECDSAWithP384AndSHA384,
			utls.PSSWithSHA384,
			utls.PKCS1WithSHA384,
			utls.PSSWithSHA512,
			utls.PKCS1WithSHA512,
		},
		ALPN: []string{"h2", "http/1.1"},
		HTTP2: H2Settings{
			HeaderTableSize:      65536,
			MaxConcurrentStreams: 1000,
			InitialWindowSize:    6291456,
			MaxFrameSize:         16777215,
			MaxHeaderListSize:    262144,
		},
		PseudoHeaderOrder: []string{":method", ":authority", ":scheme", ":path"},
	}
}

// ClientHelloSpec builds a fresh utls spec in the profile's order.
// utls mutates extensions during the handshake, so a spec must never be
// shared between connections.
func (p *Profile) ClientHelloSpec() *utls.ClientHelloSpec {
	exts := make([]utls.TLSExtension, 0, len(p.Extensions))
	for _, id := range p.Extensions {
		exts = append(exts, p.extension(id))
	}
	return &utls.ClientHelloSpec{
		TLSVersMin:         p.MinVersion,
		TLSVersMax:         p.MaxVersion,
		CipherSuites:       append([]uint16(nil), p.CipherSuites...),
		CompressionMethods: []byte{0}, // null
		Extensions:         exts,
	}
}

func (p *Profile) extension(id uint16) utls.TLSExtension {
	switch id {
	case extServerName:
		return &utls.SNIExtension{}
	case extStatusRequest:
		return &utls.StatusRequestExtension{}
	case extSupportedCurves:
		return &utls.SupportedCurvesExtension{Curves: append([]utls.CurveID(nil), p.Curves...)}
	case extPointFormats:
		return &utls.SupportedPointsExtension{SupportedPoints: []byte{0}} // uncompressed
	case extSignatureAlgorithms:
		return &utls.SignatureAlgorithmsExtension{
			SupportedSignatureAlgorithms: append([]utls.SignatureScheme(nil), p.SignatureAlgorithms...),
		}
	case extALPN:
		return &utls.ALPNExtension{AlpnProtocols: append([]string(nil), p.ALPN...)}
	case extSCT:
		return &utls.SCTExtension{}
	case extPadding:
		return &utls.UtlsPaddingExtension{GetPaddingLen: utls.BoringPaddingStyle}
	case extExtendedMasterSec:
		return &utls.ExtendedMasterSecretExtension{}
	case extCompressCert:
		return &utls.UtlsCompressCertExtension{
			Algorithms: []utls.CertCompressionAlgo{utls.CertCompressionBrotli},
		}
	case extSessionTicket:
		return &utls.SessionTicketExtension{}
	case extSupportedVersions:
		return &utls.SupportedVersionsExtension{Versions: p.versions()}
	case extPSKModes:
		return &utls.PSKKeyExchangeModesExtension{Modes: []uint8{utls.PskModeDHE}}
	case extKeyShare:
		return &utls.KeyShareExtension{KeyShares: []utls.KeyShare{{Group: p.Curves[0]}}}
	case extALPS:
		return &utls.ApplicationSettingsExtension{SupportedProtocols: []string{"h2"}}
	case extRenegotiationInfo:
		return &utls.RenegotiationInfoExtension{Renegotiation: utls.RenegotiateOnceAsClient}
	default:
		return &utls.GenericExtension{Id: id}
	}
}

// versions lists supported TLS versions from highest to lowest.
func (p *Profile) versions() []uint16 {
	var out []uint16
	for v := p.MaxVersion; v >= p.MinVersion && v >= utls.VersionTLS10; v-- {
		out = append(out, v)
	}
	return out
}

// JA3 returns the JA3 fingerprint string of the profile's ClientHello.
func (p *Profile) JA3() string {
	curves := make([]uint16, len(p.Curves))
	for i, c := range p.Curves {
		curves[i] = uint16(c)
	}
	return fmt.Sprintf("%d,%s,%s,%s,0",
		utls.VersionTLS12,
		joinUint16(p.CipherSuites),
		joinUint16(p.Extensions),
		joinUint16(curves),
	)
}

func joinUint16(vals []uint16) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, "-")
}
