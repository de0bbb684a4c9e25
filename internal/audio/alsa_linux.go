//go:build linux && (amd64 || arm64)

package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

// Kernel ABI sizes checked at compile time.
var (
	_ [376]byte = [unsafe.Sizeof(sndCtlCardInfo{})]byte{}
	_ [288]byte = [unsafe.Sizeof(sndPCMInfo{})]byte{}
	_ [608]byte = [unsafe.Sizeof(sndPCMHwParams{})]byte{}
)

const (
	ioctlCtlCardInfo      = 0x81785501
	ioctlCtlPCMNextDevice = 0x80045530
	ioctlCtlPCMInfo       = 0xc1205531
	ioctlPCMHwRefine      = 0xc2604110

	hwParamAccess        = 0
	hwParamLastMask      = 2
	hwParamChannels      = 10
	hwParamFirstInterval = 8
	hwParamLastInterval  = 19

	accessRWInterleaved = 3
	streamCapture       = 1
)

type sndCtlCardInfo struct {
	card       int32
	_          [4]byte
	id         [16]byte
	driver     [16]byte
	name       [32]byte
	longname   [80]byte
	reserved   [16]byte
	mixername  [80]byte
	components [128]byte
}

type sndPCMInfo struct {
	device          uint32
	subdevice       uint32
	stream          int32
	card            int32
	id              [64]byte
	name            [80]byte
	subname         [32]byte
	devClass        int32
	devSubclass     int32
	subdevicesCount uint32
	subdevicesAvail uint32
	_               [16]byte
	reserved        [64]byte
}

type sndMask struct {
	bits [8]uint32
}

type sndInterval struct {
	minVal uint32
	maxVal uint32
	bit    uint32
}

type sndPCMHwParams struct {
	flags     uint32
	masks     [hwParamLastMask + 1]sndMask
	mres      [5]sndMask
	intervals [hwParamLastInterval - hwParamFirstInterval + 1]sndInterval
	ires      [9]sndInterval
	rmask     uint32
	cmask     uint32
	info      uint32
	msbits    uint32
	rateNum   uint32
	rateDen   uint32
	fifoSize  uint64
	reserved  [64]byte
}

// ALSA enumerates hardware capture PCMs without libasound.
type ALSA struct {
	devDir string
}

// NewALSA returns an enumerator reading /dev/snd.
func NewALSA() *ALSA {
	return &ALSA{devDir: "/dev/snd"}
}

// Backend implements Enumerator.
func (a *ALSA) Backend() Backend { return BackendALSA }

// Devices lists capture PCMs of every sound card, addressed as hw:C,D.
func (a *ALSA) Devices(_ context.Context) ([]Device, error) {
	var devices []Device

	for card := 0; ; card++ {
		fd, err := syscall.Open(fmt.Sprintf("%s/controlC%d", a.devDir, card), syscall.O_RDONLY, 0)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				break
			}
			continue
		}

		var info sndCtlCardInfo
		if err := ioctl(fd, ioctlCtlCardInfo, unsafe.Pointer(&info)); err != nil {
			syscall.Close(fd)
			continue
		}
		cardName := cstr(info.name[:])

		dev := int32(-1)
		for {
			if err := ioctl(fd, ioctlCtlPCMNextDevice, unsafe.Pointer(&dev)); err != nil || dev < 0 {
				break
			}
			pcm := sndPCMInfo{device: uint32(dev), stream: streamCapture}
			if err := ioctl(fd, ioctlCtlPCMInfo, unsafe.Pointer(&pcm)); err != nil {
				continue
			}

			handle := fmt.Sprintf("hw:%d,%d", card, dev)
			d := Device{
				Handle:      handle,
				Description: fmt.Sprintf("%s: %s", cardName, cstr(pcm.name[:])),
				Class:       Classify(cstr(pcm.name[:])),
				Backend:     BackendALSA,
			}
			if ch, err := a.channels(card, int(dev)); err == nil {
				d.Channels = ch
			}
			devices = append(devices, d)
		}
		syscall.Close(fd)
	}

	return devices, nil
}

// Channels opens the PCM and picks a stereo-or-less channel count inside
// the range the hardware accepts.
func (a *ALSA) Channels(_ context.Context, handle string) (int, error) {
	var card, dev int
	if _, err := fmt.Sscanf(handle, "hw:%d,%d", &card, &dev); err != nil {
		return 0, fmt.Errorf("invalid ALSA handle %q: %w", handle, err)
	}
	return a.channels(card, dev)
}

func (a *ALSA) channels(card, dev int) (int, error) {
	fd, err := syscall.Open(fmt.Sprintf("%s/pcmC%dD%dc", a.devDir, card, dev), syscall.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return 0, err
	}
	defer syscall.Close(fd)

	var hw sndPCMHwParams
	for i := range hw.masks {
		hw.masks[i].bits[0] = 0xFFFFFFFF
		hw.masks[i].bits[1] = 0xFFFFFFFF
	}
	for i := range hw.intervals {
		hw.intervals[i].maxVal = 0xFFFFFFFF
	}
	hw.rmask = 0xFFFFFFFF
	hw.info = 0xFFFFFFFF
	hw.masks[hwParamAccess] = sndMask{}
	hw.masks[hwParamAccess].bits[0] = 1 << accessRWInterleaved

	if err := ioctl(fd, ioctlPCMHwRefine, unsafe.Pointer(&hw)); err != nil {
		return 0, fmt.Errorf("refine hw params: %w", err)
	}

	iv := hw.intervals[hwParamChannels-hwParamFirstInterval]
	return pickChannels(int(iv.minVal), int(iv.maxVal))
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
