package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"certmint/internal/access"
	"certmint/internal/minting"
	"certmint/internal/model"
	"certmint/internal/store"
)

// hookActorID identifies the automatic pipeline trigger in audit entries.
const hookActorID = "ingestion-pipeline"

type certifyRequest struct {
	Chain string `json:"chain" validate:"omitempty,oneof=polygon base"`
}

type hookRequest struct {
	AssetID       string `json:"assetId" validate:"required"`
	OwnerID       string `json:"ownerId" validate:"required"`
	AssetType     string `json:"assetType" validate:"required,oneof=voice_sample likeness_sample content_image content_video"`
	WalletAddress string `json:"walletAddress" validate:"omitempty"`
	Chain         string `json:"chain" validate:"omitempty,oneof=polygon base"`
}

type certificationResponse struct {
	Success          bool                 `json:"success"`
	AlreadyCertified bool                 `json:"alreadyCertified,omitempty"`
	Asset            *model.Asset         `json:"asset"`
	Certificate      *minting.Certificate `json:"certificate,omitempty"`
}

func (s *Server) handleCertify(w http.ResponseWriter, r *http.Request) {
	ident, ok := access.IdentityFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	assetID := chi.URLParam(r, "assetID")
	if assetID == "" {
		writeMessage(w, http.StatusBadRequest, "missing asset id")
		return
	}

	var payload certifyRequest
	if err := decodeOptional(r, &payload); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.certifier.RequestCertification(r.Context(), minting.Request{
		AssetID: assetID,
		Chain:   payload.Chain,
		Actor:   ident,
	})
	if err != nil {
		writeClassified(w, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyCertified {
		status = http.StatusOK
	}
	writeJSON(w, status, certificationResponse{
		Success:          true,
		AlreadyCertified: result.AlreadyCertified,
		Asset:            result.Asset,
		Certificate:      result.Certificate,
	})
}

func (s *Server) handleCertificate(w http.ResponseWriter, r *http.Request) {
	ident, ok := access.IdentityFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	assetID := chi.URLParam(r, "assetID")
	if assetID == "" {
		writeMessage(w, http.StatusBadRequest, "missing asset id")
		return
	}

	asset, err := s.store.GetByID(r.Context(), assetID, store.Scope{
		OwnerID: ident.SubjectID,
		Service: ident.Service,
	})
	if err != nil {
		writeMessage(w, http.StatusNotFound, "asset not found")
		return
	}

	resp := certificationResponse{Success: true, Asset: asset}
	if asset.CertStatus == model.CertStatusMinted {
		cert := &minting.Certificate{}
		if asset.CertChain != nil {
			cert.Chain = *asset.CertChain
			if spec, ok := s.cfg.Chains[cert.Chain]; ok {
				cert.ContractReference = spec.Contract
			}
		}
		if asset.CertTxHash != nil {
			cert.TxHash = *asset.CertTxHash
		}
		if asset.CertTokenID != nil {
			cert.TokenID = *asset.CertTokenID
		}
		if asset.CertExplorerURL != nil {
			cert.ExplorerURL = *asset.CertExplorerURL
		}
		resp.Certificate = cert
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleIngestionHook is the automatic trigger: the pipeline registers a
// freshly ingested asset and requests certification as the trusted
// service identity. It can race a manual request for the same asset;
// the store's CAS transition arbitrates.
func (s *Server) handleIngestionHook(w http.ResponseWriter, r *http.Request) {
	var payload hookRequest
	if err := decode(r, &payload); err != nil {
		s.metrics.IncHook("rejected")
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	asset := &model.Asset{
		ID:      payload.AssetID,
		OwnerID: payload.OwnerID,
		Type:    payload.AssetType,
	}
	if payload.WalletAddress != "" {
		asset.WalletAddress = &payload.WalletAddress
	}
	if err := s.store.Create(r.Context(), asset); err != nil {
		s.metrics.IncHook("failed")
		writeMessage(w, http.StatusInternalServerError, "register asset: "+err.Error())
		return
	}

	result, err := s.certifier.RequestCertification(r.Context(), minting.Request{
		AssetID: payload.AssetID,
		Chain:   payload.Chain,
		Actor:   access.Identity{SubjectID: hookActorID, Service: true},
	})
	if err != nil {
		s.metrics.IncHook("failed")
		writeClassified(w, err)
		return
	}

	s.metrics.IncHook("processed")
	status := http.StatusCreated
	if result.AlreadyCertified {
		status = http.StatusOK
	}
	writeJSON(w, status, certificationResponse{
		Success:          true,
		AlreadyCertified: result.AlreadyCertified,
		Asset:            result.Asset,
		Certificate:      result.Certificate,
	})
}
