// Package naming holds the conventions hearth uses to name libvirt
// resources and to tag domains so they can be found again.
package naming

import (
	"fmt"
	"strings"
)

const (
	// MetadataNamespace is the XML namespace of the hearth metadata element.
	MetadataNamespace = "https://github.com/jbweber/hearth/xmlns/libvirt/1"

	// MetadataPrefix is the element prefix used for hearth tags.
	MetadataPrefix = "hearth"

	netSuffix       = "-net"
	bootstrapSuffix = "-bootstrap"
)

// StandNetName returns the libvirt network name of a stand.
//
// Example: dev-stand → dev-stand-net
func StandNetName(stand string) string {
	return stand + netSuffix
}

// StandBootstrapName returns the domain name of a stand's bootstrap node.
//
// Example: dev-stand → dev-stand-bootstrap
func StandBootstrapName(stand string) string {
	return stand + bootstrapSuffix
}

// StandDomainName returns the domain name of a stand node.
//
// Example: dev-stand, bm-0 → dev-stand-bm-0
func StandDomainName(stand, node string) string {
	return stand + "-" + node
}

// StandFromBootstrapName is the inverse of StandBootstrapName. The second
// result is false when name is not a bootstrap domain name.
func StandFromBootstrapName(name string) (string, bool) {
	stand, ok := strings.CutSuffix(name, bootstrapSuffix)
	if !ok || stand == "" {
		return "", false
	}
	return stand, true
}

// DiskDevice returns the virtio target device for the i-th disk, starting
// at vda. Beyond vdz it continues with vdaa, vdab and so on.
func DiskDevice(i int) string {
	return "vd" + driveLetters(i)
}

func driveLetters(i int) string {
	if i < 26 {
		return string(rune('a' + i))
	}
	return driveLetters(i/26-1) + string(rune('a'+i%26))
}

// DiskFileName returns the file name of the i-th disk of a domain.
//
// Example: 5e1c..., 1 → 5e1c...-1.qcow2
func DiskFileName(domainUUID string, i int) string {
	return fmt.Sprintf("%s-%d.qcow2", domainUUID, i)
}

// ConfigDriveFileName returns the file name of a domain's config drive ISO
// once copied into the pool.
func ConfigDriveFileName(domainUUID string) string {
	return domainUUID + "-config-drive.iso"
}

// StandTag returns the metadata tag that marks a domain as part of a stand.
// Listing domains by this tag finds every member of the stand.
func StandTag(stand string) string {
	return Tag("stand", stand)
}

// Tag renders a single hearth metadata tag.
func Tag(key, value string) string {
	return fmt.Sprintf("<%s:%s>%s</%s:%s>", MetadataPrefix, key, xmlEscape(value), MetadataPrefix, key)
}

// MetadataElement wraps tags in the namespaced hearth element placed under
// a domain's <metadata>.
func MetadataElement(tags []string) string {
	return fmt.Sprintf(`<%s:%s xmlns:%s="%s">%s</%s:%s>`,
		MetadataPrefix, MetadataPrefix, MetadataPrefix, MetadataNamespace,
		strings.Join(tags, ""),
		MetadataPrefix, MetadataPrefix)
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string {
	return xmlEscaper.Replace(s)
}
