package feed

import (
	"encoding/xml"
	"os"
	"path/filepath"

	"bilipod/internal/models"
)

// OPMLFile is the aggregate listing served next to the feed documents.
const OPMLFile = "podcast.opml"

type opml struct {
	XMLName xml.Name  `xml:"opml"`
	Version string    `xml:"version,attr"`
	Title   string    `xml:"head>title"`
	Body    []outline `xml:"body>outline"`
}

type outline struct {
	Text   string `xml:"text,attr"`
	Type   string `xml:"type,attr"`
	XMLURL string `xml:"xmlUrl,attr"`
	Title  string `xml:"title,attr"`
}

// GenerateOPML writes the OPML document listing every pod flagged opml.
func GenerateOPML(pods []*models.Pod, dataDir string) error {
	doc := opml{Version: "1.0", Title: "Bilipod feeds"}
	for _, pod := range pods {
		if !pod.OPML {
			continue
		}
		doc.Body = append(doc.Body, outline{
			Text:   sanitize(pod.Description),
			Type:   "rss",
			XMLURL: pod.XMLURL,
			Title:  sanitize(pod.DisplayTitle()),
		})
	}

	out, err := xml.MarshalIndent(doc, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, OPMLFile), out, 0o644)
}
