package chs

import "strings"

// wantsCaptiveRedirect decides whether a request should instead receive a
// 302 to the portal root, based on its Host header: any host naming
// neither the AP's own IP nor the station's current IP, while
// provisioning is still in progress, is an OS captive-portal probe (or
// some other site) and gets rerouted to the provisioning UI (§4.3). The
// station IP is only consulted when one has actually been published —
// never the "0.0.0.0" placeholder whose substring match the original
// got wrong (Design Notes §9).
func (s *Server) wantsCaptiveRedirect(host string) bool {
	if !s.csm.IsWorking() {
		return false
	}
	if strings.Contains(host, s.cfg.APIP) {
		return false
	}
	if staIP := s.staIP.Get(); staIP != nil && strings.Contains(host, staIP.String()) {
		return false
	}
	return true
}

func (s *Server) redirectToPortal() httpResponse {
	return httpResponse{
		Status: 302,
		Headers: []headerField{
			{Name: "Location", Value: "http://" + s.cfg.APIP + "/"},
		},
		Body: []byte{},
	}
}
