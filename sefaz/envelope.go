package sefaz

import (
	"encoding/xml"
	"fmt"

	"github.com/ruteri/sefaz-config-gateway/interfaces"
)

const (
	// StatusNamespace is the default namespace of the status request.
	StatusNamespace = "http://www.portalfiscal.inf.br/nfe"

	// DefaultCUF is the IBGE code of Minas Gerais.
	DefaultCUF = "31"

	statusService  = "STATUS"
	xmlDeclaration = `<?xml version="1.0" encoding="UTF-8"?>`
)

type statusRequest struct {
	XMLName xml.Name `xml:"http://www.portalfiscal.inf.br/nfe NFeStatusServico4"`
	TpAmb   int      `xml:"tpAmb"`
	CUF     string   `xml:"cUF"`
	XServ   string   `xml:"xServ"`
}

// BuildStatusEnvelope renders the status request for env. An unknown
// environment or a malformed state code is an ErrProtocol.
func BuildStatusEnvelope(env interfaces.Environment, cUF string, pretty bool) ([]byte, error) {
	tpAmb, err := env.TpAmb()
	if err != nil {
		return nil, err
	}
	if !validCUF(cUF) {
		return nil, fmt.Errorf("%w: invalid state code %q", interfaces.ErrProtocol, cUF)
	}

	req := statusRequest{
		TpAmb: tpAmb,
		CUF:   cUF,
		XServ: statusService,
	}

	var body []byte
	if pretty {
		body, err = xml.MarshalIndent(req, "", "  ")
	} else {
		body, err = xml.Marshal(req)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode status request: %v", interfaces.ErrProtocol, err)
	}

	sep := ""
	if pretty {
		sep = "\n"
	}
	return append([]byte(xmlDeclaration+sep), body...), nil
}

// validCUF accepts the two digit IBGE state codes.
func validCUF(cUF string) bool {
	if len(cUF) != 2 {
		return false
	}
	for _, r := range cUF {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
