package toolchain

import (
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
	"github.com/posprint/relkit/pkg/httpget"
	"github.com/posprint/relkit/pkg/semver"
)

const pypiJSONURLTemplate = "https://pypi.org/pypi/%s/json"

// LatestPackagerVersion queries the PyPI JSON API for the newest published
// packager release. Purely informational: relkit reports it next to the
// installed version but never auto-upgrades.
func (p *Probe) LatestPackagerVersion() (*semver.Version, error) {
	url := fmt.Sprintf(pypiJSONURLTemplate, p.Packager)

	body, err := p.httpGetter.DoRequest(url, httpget.Opts{Header: map[string]string{"Accept": "application/json"}})
	if err != nil {
		return nil, err
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, err
	}

	got, err := jsonpath.Get("$.info.version", doc)
	if err != nil {
		return nil, err
	}

	s, ok := got.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected version payload: %v", got)
	}

	return semver.Parse(s)
}
