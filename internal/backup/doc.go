// Package backup snapshots the ZFS volumes behind libvirt domains and
// exports them, together with each domain's descriptor, to a destination.
//
// A run is strictly sequential: one domain at a time, one volume at a time.
// Every snapshot taken for a domain is destroyed before the next domain
// starts, whatever happened while exporting.
package backup
