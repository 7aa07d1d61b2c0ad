// Package crypto reúne as primitivas do lado do cliente.
//
//   - pares P-256 e acordo ECDH reduzido por HKDF-SHA256
//     (GenerateKeyPair, ParsePublicKey, DeriveSharedSecret, DeriveChannelSecret)
//   - envelopes ChaCha20-Poly1305 (Encrypt, Decrypt)
//   - backup da chave privada selado por senha (SealPrivateKey, OpenPrivateKey)
//   - envelope de grupo com uma entrada por destinatário (SealForRecipients)
//
// O servidor só usa este pacote para validar chaves públicas. O que toca
// chave privada ou plaintext roda no participante (cmd/keytool).
package crypto
