/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage persists users and projects in SQL and screen documents on disk.
// The same store runs on the embedded SQLite driver (modernc.org/sqlite) for
// single-node installs and on PostgreSQL through pgx's database/sql driver.
// Schema changes ship as numbered files under migrations/ and are applied on Open.
// Document files use transactional writes with timestamped backups.
package storage
