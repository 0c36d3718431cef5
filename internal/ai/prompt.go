package ai

// Instruction is the system message sent with every completion request.
const Instruction = "You are a helpful assistant."
