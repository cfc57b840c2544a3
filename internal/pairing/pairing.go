// Package pairing loads the optional out-of-band identity and
// certification override from {certDir}/pairing.json. A missing file
// is not an error — it is the common case.
package pairing

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/matterbridge-go/matterbridge/internal/apperr"
	"github.com/matterbridge-go/matterbridge/internal/matteradapter"
)

// raw mirrors the on-disk JSON shape; every field is optional.
type raw struct {
	VendorID                 *uint16 `json:"vendorId"`
	VendorName               *string `json:"vendorName"`
	ProductID                *uint16 `json:"productId"`
	ProductName              *string `json:"productName"`
	DeviceType               *uint32 `json:"deviceType"`
	SerialNumber             *string `json:"serialNumber"`
	UniqueID                 *string `json:"uniqueId"`
	Passcode                 *uint32 `json:"passcode"`
	Discriminator            *uint16 `json:"discriminator"`
	PrivateKey               *string `json:"privateKey"`
	Certificate              *string `json:"certificate"`
	IntermediateCertificate  *string `json:"intermediateCertificate"`
	Declaration              *string `json:"declaration"`
}

// Override is the validated, decoded result of loading pairing.json.
type Override struct {
	VendorID      *uint16
	VendorName    *string
	ProductID     *uint16
	ProductName   *string
	DeviceType    *uint32
	SerialNumber  *string
	UniqueID      *string
	Passcode      *uint32
	Discriminator *uint16

	Certification *matteradapter.DeviceCertification
}

// Load reads {certDir}/pairing.json, if it exists, validating each
// field and hex-decoding the four certification blobs. A missing file
// returns (nil, nil).
func Load(certDir string) (*Override, error) {
	path := filepath.Join(certDir, "pairing.json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Config(apperr.CodeInvalidPairingFile, "read pairing file", err)
	}

	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, apperr.Config(apperr.CodeInvalidPairingFile, "parse pairing file", err)
	}

	out := &Override{
		VendorID:    r.VendorID,
		ProductID:   r.ProductID,
		DeviceType:  r.DeviceType,
	}

	if r.VendorName != nil {
		if len(*r.VendorName) == 0 || len(*r.VendorName) > 32 {
			return nil, apperr.Config(apperr.CodeInvalidPairingFile, "vendorName must be 1-32 characters", nil)
		}
		out.VendorName = r.VendorName
	}
	if r.ProductName != nil {
		if len(*r.ProductName) == 0 || len(*r.ProductName) > 32 {
			return nil, apperr.Config(apperr.CodeInvalidPairingFile, "productName must be 1-32 characters", nil)
		}
		out.ProductName = r.ProductName
	}
	if r.SerialNumber != nil {
		if len(*r.SerialNumber) == 0 || len(*r.SerialNumber) > 32 {
			return nil, apperr.Config(apperr.CodeInvalidPairingFile, "serialNumber must be 1-32 characters", nil)
		}
		out.SerialNumber = r.SerialNumber
	}
	if r.UniqueID != nil {
		out.UniqueID = r.UniqueID
	}

	// Passcode and discriminator are only applied together.
	if r.Passcode != nil && r.Discriminator != nil {
		if *r.Passcode == 0 || *r.Passcode > 99999999 {
			return nil, apperr.Config(apperr.CodeInvalidPairingFile, "passcode out of range", nil)
		}
		if *r.Discriminator >= 4096 {
			return nil, apperr.Config(apperr.CodeInvalidPairingFile, "discriminator out of range", nil)
		}
		out.Passcode = r.Passcode
		out.Discriminator = r.Discriminator
	}

	cert, err := decodeCertification(r)
	if err != nil {
		return nil, err
	}
	out.Certification = cert

	return out, nil
}

func decodeCertification(r raw) (*matteradapter.DeviceCertification, error) {
	if r.PrivateKey == nil || r.Certificate == nil || r.IntermediateCertificate == nil || r.Declaration == nil {
		return nil, nil
	}

	privateKey, err := hex.DecodeString(*r.PrivateKey)
	if err != nil {
		return nil, apperr.Config(apperr.CodeInvalidPairingFile, "decode privateKey", err)
	}
	cert, err := hex.DecodeString(*r.Certificate)
	if err != nil {
		return nil, apperr.Config(apperr.CodeInvalidPairingFile, "decode certificate", err)
	}
	intermediate, err := hex.DecodeString(*r.IntermediateCertificate)
	if err != nil {
		return nil, apperr.Config(apperr.CodeInvalidPairingFile, "decode intermediateCertificate", err)
	}
	declaration, err := hex.DecodeString(*r.Declaration)
	if err != nil {
		return nil, apperr.Config(apperr.CodeInvalidPairingFile, "decode declaration", err)
	}

	return &matteradapter.DeviceCertification{
		PrivateKey:              privateKey,
		Certificate:             cert,
		IntermediateCertificate: intermediate,
		Declaration:             declaration,
	}, nil
}
