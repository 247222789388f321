package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE work_definitions (
				id UUID PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				type_id VARCHAR(255) NOT NULL,
				version VARCHAR(64) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				slots JSONB NOT NULL DEFAULT '[]',
				fsm JSONB NOT NULL,
				policies JSONB NOT NULL DEFAULT '{}',
				binding_attribute VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (account_id, type_id, version)
			);

			CREATE INDEX idx_work_definitions_account_type ON work_definitions(account_id, type_id);

			CREATE TABLE decision_events (
				id UUID PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				conversation_id VARCHAR(255) NOT NULL,
				trace_id VARCHAR(255) NOT NULL DEFAULT '',
				kind VARCHAR(64) NOT NULL,
				raw_input TEXT NOT NULL DEFAULT '',
				model JSONB NOT NULL DEFAULT '{}',
				output JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE proposed_works (
				id UUID PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				relationship_id VARCHAR(255) NOT NULL DEFAULT '',
				conversation_id VARCHAR(255) NOT NULL,
				decision_event_id UUID NOT NULL REFERENCES decision_events(id),
				work_definition_id UUID NOT NULL,
				intent TEXT NOT NULL DEFAULT '',
				candidate_slots JSONB NOT NULL DEFAULT '[]',
				confidence DOUBLE PRECISION NOT NULL,
				resolution VARCHAR(16) NOT NULL CHECK (resolution IN ('pending', 'opened', 'discarded')),
				work_id UUID,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				opened_at TIMESTAMP WITH TIME ZONE,
				discarded_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_proposed_works_conversation ON proposed_works(account_id, conversation_id);

			CREATE TABLE works (
				id UUID PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				relationship_id VARCHAR(255) NOT NULL DEFAULT '',
				conversation_id VARCHAR(255) NOT NULL,
				work_definition_id UUID NOT NULL REFERENCES work_definitions(id),
				definition_version VARCHAR(64) NOT NULL,
				proposed_work_id UUID,
				state VARCHAR(255) NOT NULL,
				revision BIGINT NOT NULL CHECK (revision >= 1),
				expires_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_works_conversation ON works(account_id, relationship_id, conversation_id, updated_at DESC);
			CREATE INDEX idx_works_expires_at ON works(expires_at) WHERE expires_at IS NOT NULL;

			CREATE TABLE work_slots (
				work_id UUID NOT NULL REFERENCES works(id) ON DELETE CASCADE,
				path VARCHAR(255) NOT NULL,
				value JSONB,
				status VARCHAR(16) NOT NULL CHECK (status IN ('proposed', 'committed')),
				immutable BOOLEAN NOT NULL DEFAULT false,
				set_by VARCHAR(16) NOT NULL CHECK (set_by IN ('user', 'ai', 'system')),
				evidence TEXT NOT NULL DEFAULT '',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (work_id, path)
			);

			CREATE TABLE work_events (
				id BIGSERIAL PRIMARY KEY,
				work_id UUID NOT NULL REFERENCES works(id) ON DELETE CASCADE,
				account_id VARCHAR(255) NOT NULL,
				type VARCHAR(64) NOT NULL,
				work_revision BIGINT NOT NULL,
				actor VARCHAR(16) NOT NULL,
				trace_id VARCHAR(255) NOT NULL DEFAULT '',
				payload JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_work_events_work ON work_events(work_id, work_revision);

			CREATE TABLE semantic_contexts (
				id UUID PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				conversation_id VARCHAR(255) NOT NULL,
				work_id UUID REFERENCES works(id) ON DELETE CASCADE,
				slot_path VARCHAR(255) NOT NULL,
				proposed_value JSONB,
				status VARCHAR(16) NOT NULL CHECK (status IN ('pending', 'consumed', 'expired')),
				trace_id VARCHAR(255) NOT NULL DEFAULT '',
				message_id VARCHAR(255) NOT NULL DEFAULT '',
				expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				consumed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_semantic_contexts_pending ON semantic_contexts(account_id, conversation_id, created_at DESC)
				WHERE status = 'pending';

			CREATE TABLE external_effect_claims (
				id UUID PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				work_id UUID NOT NULL REFERENCES works(id),
				effect_type VARCHAR(255) NOT NULL,
				tool_call_id VARCHAR(255),
				idempotency_key VARCHAR(255) NOT NULL,
				status VARCHAR(16) NOT NULL CHECK (status IN ('claimed', 'released')),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				released_at TIMESTAMP WITH TIME ZONE,
				UNIQUE (account_id, idempotency_key)
			);

			CREATE UNIQUE INDEX idx_external_effect_claims_tool_call
				ON external_effect_claims(work_id, effect_type, tool_call_id)
				WHERE tool_call_id IS NOT NULL;

			CREATE TABLE external_effects (
				id UUID PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				work_id UUID NOT NULL REFERENCES works(id),
				claim_id UUID NOT NULL REFERENCES external_effect_claims(id),
				idempotency_key VARCHAR(255) NOT NULL,
				tool_name VARCHAR(255) NOT NULL,
				request JSONB,
				response JSONB,
				status VARCHAR(16) NOT NULL CHECK (status IN ('succeeded', 'failed')),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (account_id, idempotency_key)
			);
		`,
	}
}
