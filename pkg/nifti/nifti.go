// Package nifti reads and writes single-file NIfTI-1 images (.nii and
// .nii.gz), the interchange format used for the tools' scans and label
// maps. Only the features the pipeline needs are supported: 3D images with
// an optional fourth (channel) dimension, the common scalar datatypes, and
// sform-based affine geometry.
package nifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"brainseg/pkg/volume"
)

// NIfTI-1 datatype codes.
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
)

const headerSize = 348

// header is the fixed 348-byte NIfTI-1 header, little-endian on disk.
type header struct {
	SizeofHdr      int32
	DataType       [10]byte
	DBName         [18]byte
	Extents        int32
	SessionError   int16
	Regular        byte
	DimInfo        byte
	Dim            [8]int16
	IntentP1       float32
	IntentP2       float32
	IntentP3       float32
	IntentCode     int16
	Datatype       int16
	Bitpix         int16
	SliceStart     int16
	Pixdim         [8]float32
	VoxOffset      float32
	SclSlope       float32
	SclInter       float32
	SliceEnd       int16
	SliceCode      byte
	XyztUnits      byte
	CalMax         float32
	CalMin         float32
	SliceDuration  float32
	Toffset        float32
	Glmax          int32
	Glmin          int32
	Descrip        [80]byte
	AuxFile        [24]byte
	QformCode      int16
	SformCode      int16
	QuaternB       float32
	QuaternC       float32
	QuaternD       float32
	QoffsetX       float32
	QoffsetY       float32
	QoffsetZ       float32
	SrowX          [4]float32
	SrowY          [4]float32
	SrowZ          [4]float32
	IntentName     [16]byte
	Magic          [4]byte
}

// Read loads a NIfTI-1 image from path. Gzip compression is detected from
// the stream itself, not the filename. The returned volume has shape
// (C, X, Y, Z) where C is the image's fourth dimension (1 for plain 3D
// scans), and carries the sform affine when present, else a pixdim-scaled
// identity.
func Read(path string) (*volume.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	magic := make([]byte, 2)
	if _, err := io.ReadFull(f, magic); err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var hdr header
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("failed to read NIfTI header: %w", err)
	}
	if hdr.SizeofHdr != headerSize {
		return nil, fmt.Errorf("not a NIfTI-1 file: sizeof_hdr = %d", hdr.SizeofHdr)
	}
	if hdr.Magic[0] != 'n' || hdr.Magic[1] != '+' || hdr.Magic[2] != '1' {
		return nil, fmt.Errorf("unsupported NIfTI magic %q (two-file .hdr/.img pairs are not supported)", hdr.Magic[:3])
	}

	ndim := int(hdr.Dim[0])
	if ndim < 3 || ndim > 4 {
		return nil, fmt.Errorf("unsupported dimensionality %d, want a 3D or 4D image", ndim)
	}
	nx, ny, nz := int(hdr.Dim[1]), int(hdr.Dim[2]), int(hdr.Dim[3])
	nc := 1
	if ndim == 4 && hdr.Dim[4] > 1 {
		nc = int(hdr.Dim[4])
	}
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, fmt.Errorf("invalid image dimensions (%d, %d, %d)", nx, ny, nz)
	}

	// Skip from the end of the header to the voxel data.
	if skip := int64(hdr.VoxOffset) - headerSize; skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, fmt.Errorf("failed to seek to voxel data: %w", err)
		}
	}

	voxels, err := readVoxels(r, hdr.Datatype, nc*nx*ny*nz)
	if err != nil {
		return nil, err
	}

	// Intensity scaling, when the header declares a real one.
	if hdr.SclSlope != 0 && (hdr.SclSlope != 1 || hdr.SclInter != 0) {
		for i := range voxels {
			voxels[i] = hdr.SclSlope*voxels[i] + hdr.SclInter
		}
	}

	// NIfTI stores x fastest; Volume stores z fastest. Transpose.
	vol := volume.New(nc, nx, ny, nz)
	i := 0
	for c := 0; c < nc; c++ {
		for z := 0; z < nz; z++ {
			for y := 0; y < ny; y++ {
				for x := 0; x < nx; x++ {
					vol.Set(c, x, y, z, voxels[i])
					i++
				}
			}
		}
	}

	vol.Affine = affineFromHeader(&hdr)
	return vol, nil
}

// readVoxels decodes count voxels of the given datatype into float32.
func readVoxels(r io.Reader, datatype int16, count int) ([]float32, error) {
	var width int
	switch datatype {
	case DTUint8:
		width = 1
	case DTInt16:
		width = 2
	case DTInt32, DTFloat32:
		width = 4
	case DTFloat64:
		width = 8
	default:
		return nil, fmt.Errorf("unsupported NIfTI datatype %d", datatype)
	}

	raw := make([]byte, count*width)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("failed to read voxel data: %w", err)
	}

	out := make([]float32, count)
	switch datatype {
	case DTUint8:
		for i := range out {
			out[i] = float32(raw[i])
		}
	case DTInt16:
		for i := range out {
			out[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:])))
		}
	case DTInt32:
		for i := range out {
			out[i] = float32(int32(binary.LittleEndian.Uint32(raw[i*4:])))
		}
	case DTFloat32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case DTFloat64:
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:])))
		}
	}
	return out, nil
}

// affineFromHeader prefers the sform matrix, falling back to a pixdim
// scaling when no sform is present.
func affineFromHeader(hdr *header) volume.Affine {
	aff := volume.Identity()
	if hdr.SformCode > 0 {
		for j := 0; j < 4; j++ {
			aff[0][j] = float64(hdr.SrowX[j])
			aff[1][j] = float64(hdr.SrowY[j])
			aff[2][j] = float64(hdr.SrowZ[j])
		}
		return aff
	}
	for axis := 0; axis < 3; axis++ {
		p := float64(hdr.Pixdim[axis+1])
		if p == 0 {
			p = 1
		}
		aff[axis][axis] = p
	}
	return aff
}

// Write stores the volume at path as a single-file NIfTI-1 image with the
// given datatype, gzip-compressed when the path ends in .gz. Values are
// clamped to the datatype's range; use DTUint8 for label maps and
// DTFloat32 for intensity data.
func Write(path string, vol *volume.Volume, datatype int16) error {
	var hdr header
	hdr.SizeofHdr = headerSize
	hdr.Regular = 'r'
	hdr.Dim[0] = 3
	if vol.Channels > 1 {
		hdr.Dim[0] = 4
	}
	hdr.Dim[1] = int16(vol.X)
	hdr.Dim[2] = int16(vol.Y)
	hdr.Dim[3] = int16(vol.Z)
	hdr.Dim[4] = int16(vol.Channels)
	for i := int(hdr.Dim[0]) + 1; i < 8; i++ {
		hdr.Dim[i] = 1
	}

	size := vol.Geometry().VoxelSize
	hdr.Pixdim[0] = 1
	hdr.Pixdim[1] = float32(size[0])
	hdr.Pixdim[2] = float32(size[1])
	hdr.Pixdim[3] = float32(size[2])

	switch datatype {
	case DTUint8:
		hdr.Bitpix = 8
	case DTInt16:
		hdr.Bitpix = 16
	case DTFloat32:
		hdr.Bitpix = 32
	default:
		return fmt.Errorf("unsupported output datatype %d", datatype)
	}
	hdr.Datatype = datatype
	hdr.VoxOffset = headerSize + 4
	hdr.SclSlope = 1
	hdr.SformCode = 1
	hdr.QformCode = 0
	for j := 0; j < 4; j++ {
		hdr.SrowX[j] = float32(vol.Affine[0][j])
		hdr.SrowY[j] = float32(vol.Affine[1][j])
		hdr.SrowZ[j] = float32(vol.Affine[2][j])
	}
	copy(hdr.Magic[:], "n+1\x00")

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("failed to encode NIfTI header: %w", err)
	}
	// Empty extension marker.
	buf.Write([]byte{0, 0, 0, 0})

	// Transpose back to x-fastest order while encoding.
	if err := writeVoxels(&buf, vol, datatype); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to finish gzip stream: %w", err)
		}
	}
	return nil
}

func writeVoxels(buf *bytes.Buffer, vol *volume.Volume, datatype int16) error {
	tmp := make([]byte, 4)
	for c := 0; c < vol.Channels; c++ {
		for z := 0; z < vol.Z; z++ {
			for y := 0; y < vol.Y; y++ {
				for x := 0; x < vol.X; x++ {
					val := vol.At(c, x, y, z)
					switch datatype {
					case DTUint8:
						v := math.Round(float64(val))
						if v < 0 {
							v = 0
						} else if v > 255 {
							v = 255
						}
						buf.WriteByte(byte(v))
					case DTInt16:
						v := math.Round(float64(val))
						if v < math.MinInt16 {
							v = math.MinInt16
						} else if v > math.MaxInt16 {
							v = math.MaxInt16
						}
						binary.LittleEndian.PutUint16(tmp, uint16(int16(v)))
						buf.Write(tmp[:2])
					case DTFloat32:
						binary.LittleEndian.PutUint32(tmp, math.Float32bits(val))
						buf.Write(tmp)
					}
				}
			}
		}
	}
	return nil
}
