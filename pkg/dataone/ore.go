package dataone

import (
	"encoding/xml"
	"net/url"
	"strings"
)

const (
	namespaceRDF     = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	namespaceORE     = "http://www.openarchives.org/ore/terms/"
	namespaceDCTerms = "http://purl.org/dc/terms/"
	namespaceCiTO    = "http://purl.org/spar/cito/"
)

// DefaultResolver resolves DataONE identifiers.
const DefaultResolver = "https://cn.dataone.org/cn/v2/resolve/"

// ResourceMap is an OAI-ORE resource map, which aggregates a metadata
// document and the objects it documents as a package.
type ResourceMap struct {
	Pid         string
	MetadataPid string
	ObjectPids  []string

	// Resolver is a url prefix of identifiers. When empty, DefaultResolver is used.
	Resolver string
}

type rdfDocument struct {
	XMLName      xml.Name         `xml:"rdf:RDF"`
	XmlnsRDF     string           `xml:"xmlns:rdf,attr"`
	XmlnsORE     string           `xml:"xmlns:ore,attr"`
	XmlnsDCTerms string           `xml:"xmlns:dcterms,attr"`
	XmlnsCiTO    string           `xml:"xmlns:cito,attr"`
	Descriptions []rdfDescription `xml:"rdf:Description"`
}

type rdfDescription struct {
	About          string         `xml:"rdf:about,attr"`
	Type           *rdfReference  `xml:"rdf:type,omitempty"`
	Identifier     string         `xml:"dcterms:identifier,omitempty"`
	Describes      *rdfReference  `xml:"ore:describes,omitempty"`
	IsDescribedBy  *rdfReference  `xml:"ore:isDescribedBy,omitempty"`
	Aggregates     []rdfReference `xml:"ore:aggregates"`
	IsAggregatedBy *rdfReference  `xml:"ore:isAggregatedBy,omitempty"`
	Documents      []rdfReference `xml:"cito:documents"`
	IsDocumentedBy *rdfReference  `xml:"cito:isDocumentedBy,omitempty"`
}

type rdfReference struct {
	Resource string `xml:"rdf:resource,attr"`
}

func ref(uri string) *rdfReference {
	return &rdfReference{Resource: uri}
}

// Marshal encodes the resource map as an RDF/XML document.
func (r ResourceMap) Marshal() ([]byte, error) {
	resolver := r.Resolver
	if resolver == "" {
		resolver = DefaultResolver
	}
	if !strings.HasSuffix(resolver, "/") {
		resolver += "/"
	}
	uri := func(pid string) string { return resolver + url.PathEscape(pid) }

	resmap := uri(r.Pid)
	aggregation := resmap + "#aggregation"
	metadata := uri(r.MetadataPid)

	agg := rdfDescription{
		About:         aggregation,
		Type:          ref(namespaceORE + "Aggregation"),
		IsDescribedBy: ref(resmap),
		Aggregates:    []rdfReference{{Resource: metadata}},
	}
	meta := rdfDescription{
		About:          metadata,
		Identifier:     r.MetadataPid,
		IsAggregatedBy: ref(aggregation),
	}
	objects := []rdfDescription{}
	for _, pid := range r.ObjectPids {
		if pid == "" {
			continue
		}
		o := uri(pid)
		agg.Aggregates = append(agg.Aggregates, rdfReference{Resource: o})
		meta.Documents = append(meta.Documents, rdfReference{Resource: o})
		objects = append(objects, rdfDescription{
			About:          o,
			Identifier:     pid,
			IsAggregatedBy: ref(aggregation),
			IsDocumentedBy: ref(metadata),
		})
	}

	doc := rdfDocument{
		XmlnsRDF:     namespaceRDF,
		XmlnsORE:     namespaceORE,
		XmlnsDCTerms: namespaceDCTerms,
		XmlnsCiTO:    namespaceCiTO,
		Descriptions: append([]rdfDescription{
			{
				About:      resmap,
				Type:       ref(namespaceORE + "ResourceMap"),
				Identifier: r.Pid,
				Describes:  ref(aggregation),
			},
			agg,
			meta,
		}, objects...),
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
