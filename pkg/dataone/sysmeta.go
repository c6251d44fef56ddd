package dataone

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"io"
)

const (
	namespaceTypesV1 = "http://ns.dataone.org/service/types/v1"
	namespaceTypesV2 = "http://ns.dataone.org/service/types/v2.0"
)

// SystemMetadata is a DataONE system metadata document (types v2.0).
type SystemMetadata struct {
	XMLName           xml.Name          `xml:"d1v2:systemMetadata"`
	XmlnsD1           string            `xml:"xmlns:d1,attr"`
	XmlnsD1V2         string            `xml:"xmlns:d1v2,attr"`
	SerialVersion     int               `xml:"serialVersion"`
	Identifier        string            `xml:"identifier"`
	FormatID          string            `xml:"formatId"`
	Size              int64             `xml:"size"`
	Checksum          Checksum          `xml:"checksum"`
	Submitter         string            `xml:"submitter"`
	RightsHolder      string            `xml:"rightsHolder"`
	AccessPolicy      AccessPolicy      `xml:"accessPolicy"`
	ReplicationPolicy ReplicationPolicy `xml:"replicationPolicy"`
	FileName          string            `xml:"fileName,omitempty"`
}

type Checksum struct {
	Algorithm string `xml:"algorithm,attr"`
	Value     string `xml:",chardata"`
}

type AccessPolicy struct {
	Allow []AccessRule `xml:"allow"`
}

type AccessRule struct {
	Subject    string `xml:"subject"`
	Permission string `xml:"permission"`
}

type ReplicationPolicy struct {
	ReplicationAllowed bool `xml:"replicationAllowed,attr"`
}

// Object is a content to be created on a member node, with its metadata.
type Object struct {
	Pid      string
	FormatID string
	Name     string
	Content  []byte
}

// SystemMetadata describes the object, owned by rightsHolder and readable by public.
func (o Object) SystemMetadata(rightsHolder string) SystemMetadata {
	sum := md5.Sum(o.Content)
	return NewSystemMetadata(
		o.Pid, o.FormatID, int64(len(o.Content)),
		hex.EncodeToString(sum[:]), o.Name, rightsHolder,
	)
}

// NewSystemMetadata builds system metadata of an object which
// is public readable and is not replicated.
func NewSystemMetadata(pid, formatId string, size int64, md5sum string, name string, rightsHolder string) SystemMetadata {
	return SystemMetadata{
		XmlnsD1:       namespaceTypesV1,
		XmlnsD1V2:     namespaceTypesV2,
		SerialVersion: 1,
		Identifier:    pid,
		FormatID:      formatId,
		Size:          size,
		Checksum:      Checksum{Algorithm: "MD5", Value: md5sum},
		Submitter:     rightsHolder,
		RightsHolder:  rightsHolder,
		AccessPolicy: AccessPolicy{
			Allow: []AccessRule{{Subject: "public", Permission: "read"}},
		},
		ReplicationPolicy: ReplicationPolicy{ReplicationAllowed: false},
		FileName:          name,
	}
}

// Marshal encodes the system metadata as an xml document.
func (s SystemMetadata) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// Checksummed reads r through, and returns its size and md5 hex digest.
func Checksummed(r io.Reader) (int64, string, error) {
	h := md5.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
