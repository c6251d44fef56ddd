package dataone

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// Person is a creator or contact of a package.
type Person struct {
	GivenName string
	SurName   string

	// UserID is an ORCID or a CILogon id.
	UserID string
}

// PersonOf splits fullName into a given name and a surname.
func PersonOf(fullName string, userId string) Person {
	fields := strings.Fields(fullName)
	switch len(fields) {
	case 0:
		return Person{UserID: userId}
	case 1:
		return Person{SurName: fields[0], UserID: userId}
	default:
		return Person{
			GivenName: strings.Join(fields[:len(fields)-1], " "),
			SurName:   fields[len(fields)-1],
			UserID:    userId,
		}
	}
}

// Entity is a file described in EML.
type Entity struct {
	Name        string
	Description string
	Size        int64
	Format      string
}

// EML is a minimal EML 2.1.1 document describing a package.
type EML struct {
	PackageID string
	Title     string

	// Abstract may contain html. Tags are stripped.
	Abstract string
	Creator  Person
	License  License
	Entities []Entity
}

type emlDocument struct {
	XMLName  xml.Name   `xml:"eml:eml"`
	XmlnsEML string     `xml:"xmlns:eml,attr"`
	Package  string     `xml:"packageId,attr"`
	System   string     `xml:"system,attr"`
	Scope    string     `xml:"scope,attr"`
	Dataset  emlDataset `xml:"dataset"`
}

type emlDataset struct {
	Title              string           `xml:"title"`
	Creator            emlParty         `xml:"creator"`
	Abstract           emlParagraphs    `xml:"abstract"`
	IntellectualRights emlParagraphs    `xml:"intellectualRights"`
	Contact            emlParty         `xml:"contact"`
	OtherEntities      []emlOtherEntity `xml:"otherEntity"`
}

type emlParty struct {
	IndividualName emlIndividualName `xml:"individualName"`
	UserID         emlUserID         `xml:"userId"`
}

type emlIndividualName struct {
	GivenName string `xml:"givenName,omitempty"`
	SurName   string `xml:"surName"`
}

type emlUserID struct {
	Directory string `xml:"directory,attr"`
	Value     string `xml:",chardata"`
}

type emlParagraphs struct {
	Para []string `xml:"para"`
}

type emlOtherEntity struct {
	EntityName        string      `xml:"entityName"`
	EntityDescription string      `xml:"entityDescription,omitempty"`
	Physical          emlPhysical `xml:"physical"`
	EntityType        string      `xml:"entityType"`
}

type emlPhysical struct {
	ObjectName string        `xml:"objectName"`
	Size       emlSize       `xml:"size"`
	DataFormat emlDataFormat `xml:"dataFormat"`
}

type emlSize struct {
	Unit  string `xml:"unit,attr"`
	Value string `xml:",chardata"`
}

type emlDataFormat struct {
	FormatName string `xml:"externallyDefinedFormat>formatName"`
}

func (p Person) party() emlParty {
	return emlParty{
		IndividualName: emlIndividualName{GivenName: p.GivenName, SurName: p.SurName},
		UserID:         emlUserID{Directory: Directory(p.UserID), Value: p.UserID},
	}
}

// Marshal encodes the EML as an xml document.
func (e EML) Marshal() ([]byte, error) {
	doc := emlDocument{
		XmlnsEML: FormatEML,
		Package:  e.PackageID,
		System:   "https://dataone.org",
		Scope:    "system",
		Dataset: emlDataset{
			Title:    e.Title,
			Creator:  e.Creator.party(),
			Contact:  e.Creator.party(),
			Abstract: emlParagraphs{Para: []string{StripHTMLTags(e.Abstract)}},
			IntellectualRights: emlParagraphs{
				Para: []string{e.License.Name + " (" + e.License.URL + ")"},
			},
		},
	}
	for _, en := range e.Entities {
		format := en.Format
		if format == "" {
			format = FormatOctetStream
		}
		doc.Dataset.OtherEntities = append(doc.Dataset.OtherEntities, emlOtherEntity{
			EntityName:        en.Name,
			EntityDescription: en.Description,
			Physical: emlPhysical{
				ObjectName: en.Name,
				Size:       emlSize{Unit: "bytes", Value: strconv.FormatInt(en.Size, 10)},
				DataFormat: emlDataFormat{FormatName: format},
			},
			EntityType: format,
		})
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
