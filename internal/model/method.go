package model

import "net/http"

// DavMethod enumerates the HTTP methods the dispatcher recognizes,
// including the WebDAV/CalDAV extension methods beyond the stdlib's verbs.
type DavMethod uint8

const (
	MethodGET DavMethod = iota
	MethodPUT
	MethodPOST
	MethodDELETE
	MethodHEAD
	MethodPATCH
	MethodPROPFIND
	MethodPROPPATCH
	MethodREPORT
	MethodMKCOL
	MethodMKCALENDAR
	MethodCOPY
	MethodMOVE
	MethodLOCK
	MethodUNLOCK
	MethodOPTIONS
	MethodACL
)

var methodNames = map[string]DavMethod{
	http.MethodGet:     MethodGET,
	http.MethodPut:     MethodPUT,
	http.MethodPost:    MethodPOST,
	http.MethodDelete:  MethodDELETE,
	http.MethodHead:    MethodHEAD,
	http.MethodPatch:   MethodPATCH,
	http.MethodOptions: MethodOPTIONS,
	"PROPFIND":         MethodPROPFIND,
	"PROPPATCH":        MethodPROPPATCH,
	"REPORT":           MethodREPORT,
	"MKCOL":            MethodMKCOL,
	"MKCALENDAR":       MethodMKCALENDAR,
	"COPY":             MethodCOPY,
	"MOVE":             MethodMOVE,
	"LOCK":             MethodLOCK,
	"UNLOCK":           MethodUNLOCK,
	"ACL":              MethodACL,
}

// ParseDavMethod maps an HTTP method token to a DavMethod.
func ParseDavMethod(method string) (DavMethod, bool) {
	m, ok := methodNames[method]
	return m, ok
}

// HasBody reports whether requests using this method are expected to carry
// an XML body, matching DavMethod::has_body.
func (m DavMethod) HasBody() bool {
	switch m {
	case MethodPUT, MethodPOST, MethodPATCH, MethodPROPPATCH, MethodPROPFIND,
		MethodREPORT, MethodLOCK, MethodACL, MethodMKCALENDAR:
		return true
	default:
		return false
	}
}

// Depth is the value of the WebDAV Depth header.
type Depth uint8

const (
	DepthZero Depth = iota
	DepthOne
	DepthInfinity
)

// ParseDepth parses a Depth header value, defaulting to def when empty.
func ParseDepth(header string, def Depth) Depth {
	switch header {
	case "0":
		return DepthZero
	case "1":
		return DepthOne
	case "infinity":
		return DepthInfinity
	default:
		return def
	}
}
