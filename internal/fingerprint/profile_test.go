package fingerprint

import (
	"strings"
	"testing"

	utls "github.com/refraction-networking/utls"
)

func TestChromeProfile(t *testing.T) {
	p := Chrome()

	if p.HTTP2.HeaderTableSize != 65536 || p.HTTP2.MaxConcurrentStreams != 1000 ||
		p.HTTP2.InitialWindowSize != 6291456 || p.HTTP2.MaxFrameSize != 16777215 ||
		p.HTTP2.MaxHeaderListSize != 262144 {
		t.Errorf("HTTP2 settings = %+v", p.HTTP2)
	}
	wantPseudo := []string{":method", ":authority", ":scheme", ":path"}
	if strings.Join(p.PseudoHeaderOrder, ",") != strings.Join(wantPseudo, ",") {
		t.Errorf("PseudoHeaderOrder = %v, want %v", p.PseudoHeaderOrder, wantPseudo)
	}
	if p.CipherSuites[0] != 0x1301 || p.CipherSuites[3] != 0xc02b {
		t.Errorf("CipherSuites start = %#x..., want TLS 1.3 suites then ECDHE-ECDSA-AES128-GCM", p.CipherSuites[:4])
	}
}

func TestClientHelloSpec_Order(t *testing.T) {
	p := Chrome()
	spec := p.ClientHelloSpec()

	if len(spec.Extensions) != len(p.Extensions) {
		t.Fatalf("len(Extensions) = %d, want %d", len(spec.Extensions), len(p.Extensions))
	}

	checks := map[int]func(utls.TLSExtension) bool{
		0:  func(e utls.TLSExtension) bool { _, ok := e.(*utls.SNIExtension); return ok },
		3:  func(e utls.TLSExtension) bool { _, ok := e.(*utls.SupportedCurvesExtension); return ok },
		6:  func(e utls.TLSExtension) bool { _, ok := e.(*utls.ALPNExtension); return ok },
		10: func(e utls.TLSExtension) bool { _, ok := e.(*utls.KeyShareExtension); return ok },
		12: func(e utls.TLSExtension) bool { _, ok := e.(*utls.SupportedVersionsExtension); return ok },
	}
	for i, check := range checks {
		if !check(spec.Extensions[i]) {
			t.Errorf("Extensions[%d] = %T, unexpected type", i, spec.Extensions[i])
		}
	}

	alpn := spec.Extensions[6].(*utls.ALPNExtension)
	if strings.Join(alpn.AlpnProtocols, ",") != "h2,http/1.1" {
		t.Errorf("ALPN = %v, want [h2 http/1.1]", alpn.AlpnProtocols)
	}
	versions := spec.Extensions[12].(*utls.SupportedVersionsExtension)
	if len(versions.Versions) != 2 || versions.Versions[0] != utls.VersionTLS13 {
		t.Errorf("Versions = %#x, want [TLS1.3 TLS1.2]", versions.Versions)
	}
}

func TestClientHelloSpec_Fresh(t *testing.T) {
	p := Chrome()
	a := p.ClientHelloSpec()
	b := p.ClientHelloSpec()
	if a.Extensions[0] == b.Extensions[0] {
		t.Error("ClientHelloSpec() shares extension instances between calls")
	}
	a.CipherSuites[0] = 0
	if p.CipherSuites[0] == 0 {
		t.Error("ClientHelloSpec() aliases the profile's cipher slice")
	}
}

func TestClientHelloSpec_UnknownExtension(t *testing.T) {
	p := Chrome()
	p.Extensions = []uint16{0, 0xfe0d}
	spec := p.ClientHelloSpec()
	g, ok := spec.Extensions[1].(*utls.GenericExtension)
	if !ok || g.Id != 0xfe0d {
		t.Errorf("Extensions[1] = %#v, want GenericExtension{Id: 0xfe0d}", spec.Extensions[1])
	}
}

func TestJA3(t *testing.T) {
	ja3 := Chrome().JA3()
	parts := strings.Split(ja3, ",")
	if len(parts) != 5 {
		t.Fatalf("JA3 = %q, want 5 fields", ja3)
	}
	if parts[0] != "771" {
		t.Errorf("JA3 version = %q, want 771", parts[0])
	}
	if !strings.HasPrefix(parts[1], "4865-4866-4867-49195-49199") {
		t.Errorf("JA3 ciphers = %q", parts[1])
	}
	if parts[3] != "29-23-24" {
		t.Errorf("JA3 curves = %q, want 29-23-24", parts[3])
	}
}
