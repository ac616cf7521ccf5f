package main

import (
	"context"
	"fmt"
	"net/http/httptest"
	"time"

	"ProofChain/internal/api"
	"ProofChain/internal/auth"
	"ProofChain/internal/host"
	"ProofChain/internal/storage"
	"ProofChain/sdk/go/proofs"
)

func main() {
	h := host.New(storage.NewMemoryStore())
	authSvc, err := auth.NewService(auth.Config{Mode: auth.ModeHeader})
	if err != nil {
		panic(err)
	}
	srv := httptest.NewServer(api.NewServer(":0", h, api.Options{Auth: authSvc}).Handler())
	defer srv.Close()

	client, err := proofs.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}
	owner := "0x00000000000000000000000000000000000a11ce"
	client.SetCaller(owner)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec, err := client.Certify(ctx, proofs.CertifyRequest{ProofID: "DIPLOMA-2024-001", ProofText: "BSc Computer Science"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("certified in tx %s (writes=%d)\n", rec.TxID, rec.Writes)

	if _, err := client.Update(ctx, "DIPLOMA-2024-001", proofs.UpdateRequest{ProofText: "BSc Computer Science, honours"}); err != nil {
		panic(err)
	}

	proof, ok, err := client.Proof(ctx, owner, "DIPLOMA-2024-001")
	if err != nil {
		panic(err)
	}
	fmt.Printf("found=%v text=%q certified_at=%d\n", ok, proof.ProofText, proof.Timestamp)

	_, err = client.Certify(ctx, proofs.CertifyRequest{ProofID: "DIPLOMA-2024-001", ProofText: "again"})
	fmt.Printf("duplicate rejected: %v\n", proofs.IsCode(err, "PROOF_DUPLICATE_ID"))
}
