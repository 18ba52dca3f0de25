package eappx

import "encoding/xml"

// AppxBundleManifest is the root of AppxBundleManifest.xml.
type AppxBundleManifest struct {
	XMLName  xml.Name `xml:"Bundle"`
	Identity Identity `xml:"Identity"`
	Packages Packages `xml:"Packages"`
}

// parseBundleManifest decodes AppxBundleManifest.xml.
func parseBundleManifest(data []byte) (*AppxBundleManifest, error) {
	var m AppxBundleManifest
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, newDecodeError("bad bundle manifest xml: %v", err)
	}
	return &m, nil
}
