// Package disk prepares domain disks in a libvirt directory pool.
//
// Disk images are created with qemu-img and placed with cp/rm through
// runner.Runner, because the pool directory is usually owned by root while
// hearth runs as a regular user with sudo rights. Nothing here talks to the
// libvirt storage pool API.
package disk
